package advertising

import (
	"context"

	"github.com/rahul/bidibip/internal/wizard"
)

const (
	CompensationUnpaid = "unpaid"
	CompensationPaid   = "paid"

	LocationRemote   = "remote"
	LocationAnywhere = "anywhere"
	LocationHybrid   = "hybrid"
	LocationOnSite   = "on-site"
)

var compensationChoices = []wizard.Choice{
	{Key: CompensationUnpaid, Label: "No"},
	{Key: CompensationPaid, Label: "Yes"},
}

var workerLocationChoices = []wizard.Choice{
	{Key: LocationRemote, Label: "🌍 Remote"},
	{Key: LocationAnywhere, Label: "🤷 Either"},
	{Key: LocationOnSite, Label: "🏣 On site"},
}

var recruiterLocationChoices = []wizard.Choice{
	{Key: LocationRemote, Label: "🌍 Remote"},
	{Key: LocationHybrid, Label: "🤷 Remote possible"},
	{Key: LocationOnSite, Label: "🏣 On site only"},
}

// Internship asks how long the internship lasts and whether it is paid.
type Internship struct {
	Duration     wizard.TextOption                 `json:"duration"`
	Compensation wizard.ChoiceOption[Compensation] `json:"compensation"`
}

func (s *Internship) Advance(ctx context.Context, env *wizard.Env) (bool, error) {
	if !s.Duration.IsSet() {
		return false, s.Duration.Ask(ctx, env, "How long is the internship?")
	}
	if !s.Compensation.IsSet() {
		return false, s.Compensation.Ask(ctx, env, "Is the internship paid?", compensationChoices...)
	}
	return s.Compensation.AdvanceNested(ctx, env)
}

func (s *Internship) slots() []wizard.Slot {
	return []wizard.Slot{&s.Duration, &s.Compensation}
}

func (s *Internship) ReceiveEvent(ctx context.Context, env *wizard.Env, ev wizard.Event) (bool, error) {
	return wizard.ReceiveFirst(ctx, env, ev, s.slots()...)
}

func (s *Internship) Dependencies() []wizard.SubStep {
	return s.Compensation.Dependencies()
}

func (s *Internship) Delete(ctx context.Context, env *wizard.Env) {
	wizard.DeleteAll(ctx, env, &s.Duration, &s.Compensation)
}

func (s *Internship) CleanForStorage(ctx context.Context, env *wizard.Env) {
	wizard.CleanAll(ctx, env, &s.Duration, &s.Compensation)
}

func (s *Internship) Restore(ctx context.Context, env *wizard.Env) error {
	return wizard.RestoreAll(ctx, env, &s.Duration, &s.Compensation)
}

type Compensation struct {
	Kind   string             `json:"kind"`
	Amount *wizard.TextOption `json:"amount,omitempty"`
}

func (Compensation) Build(key string) (Compensation, bool) {
	switch key {
	case CompensationUnpaid:
		return Compensation{Kind: key}, true
	case CompensationPaid:
		return Compensation{Kind: key, Amount: wizard.NewText("How much is the stipend?")}, true
	}
	return Compensation{}, false
}

func (c Compensation) Sub() wizard.SubStep {
	if c.Amount != nil {
		return c.Amount
	}
	return nil
}

// Terms covers contracts with a fixed length and a pay: freelance,
// work-study and fixed-term.
type Terms struct {
	Duration wizard.TextOption `json:"duration"`
	Pay      wizard.TextOption `json:"pay"`
}

func (s *Terms) Advance(ctx context.Context, env *wizard.Env) (bool, error) {
	if !s.Duration.IsSet() {
		return false, s.Duration.Ask(ctx, env, "How long is the contract?")
	}
	if !s.Pay.IsSet() {
		return false, s.Pay.Ask(ctx, env, "What is the pay?")
	}
	return true, nil
}

func (s *Terms) ReceiveEvent(ctx context.Context, env *wizard.Env, ev wizard.Event) (bool, error) {
	return wizard.ReceiveFirst(ctx, env, ev, &s.Duration, &s.Pay)
}

func (s *Terms) Dependencies() []wizard.SubStep { return nil }

func (s *Terms) Delete(ctx context.Context, env *wizard.Env) {
	wizard.DeleteAll(ctx, env, &s.Duration, &s.Pay)
}

func (s *Terms) CleanForStorage(ctx context.Context, env *wizard.Env) {
	wizard.CleanAll(ctx, env, &s.Duration, &s.Pay)
}

func (s *Terms) Restore(ctx context.Context, env *wizard.Env) error {
	return wizard.RestoreAll(ctx, env, &s.Duration, &s.Pay)
}

// Location is where the work happens. Every kind but remote asks for a
// city or region.
type Location struct {
	Kind string             `json:"kind"`
	City *wizard.TextOption `json:"city,omitempty"`
}

func (Location) Build(key string) (Location, bool) {
	switch key {
	case LocationRemote:
		return Location{Kind: key}, true
	case LocationAnywhere, LocationHybrid, LocationOnSite:
		return Location{Kind: key, City: wizard.NewText("Which city or region?")}, true
	}
	return Location{}, false
}

func (l Location) Sub() wizard.SubStep {
	if l.City != nil {
		return l.City
	}
	return nil
}

type Worker struct {
	Location wizard.ChoiceOption[Location] `json:"location"`
	Skills   wizard.TextOption             `json:"skills"`
}

func (s *Worker) Advance(ctx context.Context, env *wizard.Env) (bool, error) {
	if !s.Location.IsSet() {
		return false, s.Location.Ask(ctx, env, "Do you want to work remotely or on site?", workerLocationChoices...)
	}
	if done, err := s.Location.AdvanceNested(ctx, env); !done || err != nil {
		return false, err
	}
	if !s.Skills.IsSet() {
		return false, s.Skills.Ask(ctx, env, "What are your skills?")
	}
	return true, nil
}

func (s *Worker) ReceiveEvent(ctx context.Context, env *wizard.Env, ev wizard.Event) (bool, error) {
	return wizard.ReceiveFirst(ctx, env, ev, &s.Location, &s.Skills)
}

func (s *Worker) Dependencies() []wizard.SubStep {
	return s.Location.Dependencies()
}

func (s *Worker) Delete(ctx context.Context, env *wizard.Env) {
	wizard.DeleteAll(ctx, env, &s.Location, &s.Skills)
}

func (s *Worker) CleanForStorage(ctx context.Context, env *wizard.Env) {
	wizard.CleanAll(ctx, env, &s.Location, &s.Skills)
}

func (s *Worker) Restore(ctx context.Context, env *wizard.Env) error {
	return wizard.RestoreAll(ctx, env, &s.Location, &s.Skills)
}

type Recruiter struct {
	Location         wizard.ChoiceOption[Location] `json:"location"`
	Studio           wizard.TextOption             `json:"studio"`
	Responsibilities wizard.TextOption             `json:"responsibilities"`
	Qualifications   wizard.TextOption             `json:"qualifications"`
}

func (s *Recruiter) Advance(ctx context.Context, env *wizard.Env) (bool, error) {
	if !s.Location.IsSet() {
		return false, s.Location.Ask(ctx, env, "What are the working arrangements?", recruiterLocationChoices...)
	}
	if done, err := s.Location.AdvanceNested(ctx, env); !done || err != nil {
		return false, err
	}
	if !s.Studio.IsSet() {
		return false, s.Studio.Ask(ctx, env, "Which company or studio is hiring?")
	}
	if !s.Responsibilities.IsSet() {
		return false, s.Responsibilities.Ask(ctx, env, "What are the responsibilities?")
	}
	if !s.Qualifications.IsSet() {
		return false, s.Qualifications.Ask(ctx, env, "What qualifications are required?")
	}
	return true, nil
}

func (s *Recruiter) slots() []wizard.Slot {
	return []wizard.Slot{&s.Location, &s.Studio, &s.Responsibilities, &s.Qualifications}
}

func (s *Recruiter) ReceiveEvent(ctx context.Context, env *wizard.Env, ev wizard.Event) (bool, error) {
	return wizard.ReceiveFirst(ctx, env, ev, s.slots()...)
}

func (s *Recruiter) Dependencies() []wizard.SubStep {
	return s.Location.Dependencies()
}

func (s *Recruiter) Delete(ctx context.Context, env *wizard.Env) {
	for _, slot := range s.slots() {
		slot.Delete(ctx, env)
	}
}

func (s *Recruiter) CleanForStorage(ctx context.Context, env *wizard.Env) {
	for _, slot := range s.slots() {
		slot.CleanForStorage(ctx, env)
	}
}

func (s *Recruiter) Restore(ctx context.Context, env *wizard.Env) error {
	for _, slot := range s.slots() {
		if err := slot.Restore(ctx, env); err != nil {
			return err
		}
	}
	return nil
}
