// Package advertising implements the job advertisement wizard: a step tree
// asking for the title, description, contract, role and contact of an ad,
// and the module that opens editing threads, publishes finished ads and
// lets their authors edit or delete them later.
package advertising

import (
	"context"

	"github.com/rahul/bidibip/internal/wizard"
)

const (
	ContractVolunteering = "volunteering"
	ContractInternship   = "internship"
	ContractWorkStudy    = "work-study"
	ContractFreelance    = "freelance"
	ContractFixedTerm    = "fixed-term"
	ContractOpenEnded    = "open-ended"

	RoleWorker    = "worker"
	RoleRecruiter = "recruiter"

	ContactDiscord = "discord"
	ContactOther   = "other"
)

var contractChoices = []wizard.Choice{
	{Key: ContractVolunteering, Label: "🤝 Volunteering (unpaid)"},
	{Key: ContractInternship, Label: "🪂 Internship"},
	{Key: ContractWorkStudy, Label: "🤓 Work-study (paid)"},
	{Key: ContractFreelance, Label: "🧐 Freelance"},
	{Key: ContractFixedTerm, Label: "😎 Fixed-term (paid)"},
	{Key: ContractOpenEnded, Label: "🤯 Permanent (paid)"},
}

var roleChoices = []wizard.Choice{
	{Key: RoleWorker, Label: "🔧 I am looking for work"},
	{Key: RoleRecruiter, Label: "🕵️ I am hiring"},
}

var contactChoices = []wizard.Choice{
	{Key: ContactDiscord, Label: "Discord"},
	{Key: ContactOther, Label: "Other"},
}

// Ad is the root of the advertisement step tree.
type Ad struct {
	Title       wizard.TextOption             `json:"title"`
	Description wizard.TextOption             `json:"description"`
	Contract    wizard.ChoiceOption[Contract] `json:"contract"`
	Role        wizard.ChoiceOption[Role]     `json:"role"`
	Contact     wizard.ChoiceOption[Contact]  `json:"contact"`
	Links       wizard.TextOption             `json:"links"`
}

func NewAd() *Ad {
	return &Ad{Description: wizard.TextOption{Form: true}}
}

func (a *Ad) Advance(ctx context.Context, env *wizard.Env) (bool, error) {
	if !a.Title.IsSet() {
		return false, a.Title.Ask(ctx, env, "Give your ad a title")
	}
	if !a.Description.IsSet() {
		return false, a.Description.Ask(ctx, env, "Describe your ad: what it is about, who you are...")
	}

	if !a.Contract.IsSet() {
		return false, a.Contract.Ask(ctx, env, "What kind of contract is it?", contractChoices...)
	}
	if done, err := a.Contract.AdvanceNested(ctx, env); !done || err != nil {
		return false, err
	}

	if !a.Role.IsSet() {
		return false, a.Role.Ask(ctx, env, "Are you looking for work or hiring?", roleChoices...)
	}
	if done, err := a.Role.AdvanceNested(ctx, env); !done || err != nil {
		return false, err
	}

	if !a.Contact.IsSet() {
		return false, a.Contact.Ask(ctx, env, "How can people contact you?", contactChoices...)
	}
	if done, err := a.Contact.AdvanceNested(ctx, env); !done || err != nil {
		return false, err
	}

	if !a.Links.IsSet() {
		return false, a.Links.Ask(ctx, env, "Any other useful links? (portfolio, website... or \"none\")")
	}
	return true, nil
}

func (a *Ad) slots() []wizard.Slot {
	return []wizard.Slot{&a.Title, &a.Description, &a.Contract, &a.Role, &a.Contact, &a.Links}
}

func (a *Ad) ReceiveEvent(ctx context.Context, env *wizard.Env, ev wizard.Event) (bool, error) {
	return wizard.ReceiveFirst(ctx, env, ev, a.slots()...)
}

func (a *Ad) Dependencies() []wizard.SubStep {
	var deps []wizard.SubStep
	deps = append(deps, a.Contract.Dependencies()...)
	deps = append(deps, a.Role.Dependencies()...)
	deps = append(deps, a.Contact.Dependencies()...)
	return deps
}

func (a *Ad) Delete(ctx context.Context, env *wizard.Env) {
	for _, s := range a.slots() {
		s.Delete(ctx, env)
	}
}

func (a *Ad) CleanForStorage(ctx context.Context, env *wizard.Env) {
	for _, s := range a.slots() {
		s.CleanForStorage(ctx, env)
	}
}

func (a *Ad) Restore(ctx context.Context, env *wizard.Env) error {
	for _, s := range a.slots() {
		if err := s.Restore(ctx, env); err != nil {
			return err
		}
	}
	return nil
}

func (a *Ad) Summary() string {
	if title, ok := a.Title.Get(); ok {
		return wizard.TruncateText(title, 80)
	}
	return "(untitled)"
}

// Contract is the kind of contract and the terms that come with it.
type Contract struct {
	Kind       string             `json:"kind"`
	Internship *Internship        `json:"internship,omitempty"`
	Terms      *Terms             `json:"terms,omitempty"`
	Salary     *wizard.TextOption `json:"salary,omitempty"`
}

func (Contract) Build(key string) (Contract, bool) {
	switch key {
	case ContractVolunteering:
		return Contract{Kind: key}, true
	case ContractInternship:
		return Contract{Kind: key, Internship: &Internship{}}, true
	case ContractWorkStudy, ContractFreelance, ContractFixedTerm:
		return Contract{Kind: key, Terms: &Terms{}}, true
	case ContractOpenEnded:
		return Contract{Kind: key, Salary: wizard.NewText("What is the salary?")}, true
	}
	return Contract{}, false
}

func (c Contract) Sub() wizard.SubStep {
	switch {
	case c.Internship != nil:
		return c.Internship
	case c.Terms != nil:
		return c.Terms
	case c.Salary != nil:
		return c.Salary
	}
	return nil
}

// Role tells workers and recruiters apart.
type Role struct {
	Kind      string     `json:"kind"`
	Worker    *Worker    `json:"worker,omitempty"`
	Recruiter *Recruiter `json:"recruiter,omitempty"`
}

func (Role) Build(key string) (Role, bool) {
	switch key {
	case RoleWorker:
		return Role{Kind: key, Worker: &Worker{Skills: wizard.TextOption{Form: true}}}, true
	case RoleRecruiter:
		return Role{Kind: key, Recruiter: &Recruiter{
			Responsibilities: wizard.TextOption{Form: true},
			Qualifications:   wizard.TextOption{Form: true},
		}}, true
	}
	return Role{}, false
}

func (r Role) Sub() wizard.SubStep {
	switch {
	case r.Worker != nil:
		return r.Worker
	case r.Recruiter != nil:
		return r.Recruiter
	}
	return nil
}

type Contact struct {
	Kind    string             `json:"kind"`
	Details *wizard.TextOption `json:"details,omitempty"`
}

func (Contact) Build(key string) (Contact, bool) {
	switch key {
	case ContactDiscord:
		return Contact{Kind: key}, true
	case ContactOther:
		return Contact{Kind: key, Details: wizard.NewText("Give at least one way to reach you (mail, etc.)")}, true
	}
	return Contact{}, false
}

func (c Contact) Sub() wizard.SubStep {
	if c.Details != nil {
		return c.Details
	}
	return nil
}
