package advertising

import (
	"fmt"
	"strings"

	"github.com/rahul/bidibip/internal/wizard"
)

var contractLabels = map[string]string{
	ContractVolunteering: "Volunteering",
	ContractInternship:   "Internship",
	ContractWorkStudy:    "Work-study",
	ContractFreelance:    "Freelance",
	ContractFixedTerm:    "Fixed-term contract",
	ContractOpenEnded:    "Permanent contract",
}

type missingError struct {
	field string
}

func (e missingError) Error() string {
	return fmt.Sprintf("missing %s", e.field)
}

func (e missingError) Unwrap() error {
	return wizard.ErrNotComplete
}

func need(t *wizard.TextOption, field string) (string, error) {
	if t == nil {
		return "", missingError{field}
	}
	v, ok := t.Get()
	if !ok {
		return "", missingError{field}
	}
	return v, nil
}

// Preview renders the ad as it will be published.
func (a *Ad) Preview() (string, error) {
	var b strings.Builder

	title, err := need(&a.Title, "title")
	if err != nil {
		return "", err
	}
	description, err := need(&a.Description, "description")
	if err != nil {
		return "", err
	}
	fmt.Fprintf(&b, "# %s\n%s\n\n", title, description)

	contract, ok := a.Contract.Get()
	if !ok {
		return "", missingError{"contract"}
	}
	if err := writeContract(&b, contract); err != nil {
		return "", err
	}

	role, ok := a.Role.Get()
	if !ok {
		return "", missingError{"role"}
	}
	if err := writeRole(&b, role); err != nil {
		return "", err
	}

	contact, ok := a.Contact.Get()
	if !ok {
		return "", missingError{"contact"}
	}
	switch contact.Kind {
	case ContactDiscord:
		b.WriteString("**Contact:** private message on Discord\n")
	default:
		details, err := need(contact.Details, "contact details")
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "**Contact:** %s\n", details)
	}

	links, err := need(&a.Links, "links")
	if err != nil {
		return "", err
	}
	fmt.Fprintf(&b, "**Links:** %s\n", links)
	return b.String(), nil
}

func writeContract(b *strings.Builder, c Contract) error {
	fmt.Fprintf(b, "**Contract:** %s\n", contractLabels[c.Kind])
	switch {
	case c.Internship != nil:
		duration, err := need(&c.Internship.Duration, "internship duration")
		if err != nil {
			return err
		}
		fmt.Fprintf(b, "**Duration:** %s\n", duration)
		comp, ok := c.Internship.Compensation.Get()
		if !ok {
			return missingError{"internship compensation"}
		}
		if comp.Kind == CompensationUnpaid {
			b.WriteString("**Paid:** no\n")
			return nil
		}
		amount, err := need(comp.Amount, "stipend")
		if err != nil {
			return err
		}
		fmt.Fprintf(b, "**Paid:** %s\n", amount)
	case c.Terms != nil:
		duration, err := need(&c.Terms.Duration, "contract duration")
		if err != nil {
			return err
		}
		pay, err := need(&c.Terms.Pay, "pay")
		if err != nil {
			return err
		}
		fmt.Fprintf(b, "**Duration:** %s\n**Pay:** %s\n", duration, pay)
	case c.Salary != nil:
		salary, err := need(c.Salary, "salary")
		if err != nil {
			return err
		}
		fmt.Fprintf(b, "**Salary:** %s\n", salary)
	}
	return nil
}

func writeRole(b *strings.Builder, r Role) error {
	switch {
	case r.Worker != nil:
		where, err := locationText(&r.Worker.Location)
		if err != nil {
			return err
		}
		skills, err := need(&r.Worker.Skills, "skills")
		if err != nil {
			return err
		}
		fmt.Fprintf(b, "**Looking for work**\n**Location:** %s\n### Skills\n%s\n", where, skills)
	case r.Recruiter != nil:
		where, err := locationText(&r.Recruiter.Location)
		if err != nil {
			return err
		}
		studio, err := need(&r.Recruiter.Studio, "company")
		if err != nil {
			return err
		}
		resp, err := need(&r.Recruiter.Responsibilities, "responsibilities")
		if err != nil {
			return err
		}
		quals, err := need(&r.Recruiter.Qualifications, "qualifications")
		if err != nil {
			return err
		}
		fmt.Fprintf(b, "**Hiring:** %s\n**Location:** %s\n### Responsibilities\n%s\n### Qualifications\n%s\n",
			studio, where, resp, quals)
	default:
		return missingError{"role"}
	}
	return nil
}

func locationText(o *wizard.ChoiceOption[Location]) (string, error) {
	loc, ok := o.Get()
	if !ok {
		return "", missingError{"location"}
	}
	if loc.Kind == LocationRemote {
		return "🌍 remote only", nil
	}
	city, err := need(loc.City, "city")
	if err != nil {
		return "", err
	}
	switch loc.Kind {
	case LocationOnSite:
		return city + " (🏣 on site)", nil
	default:
		return city + " (🤷 remote possible)", nil
	}
}
