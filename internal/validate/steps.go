package validate

import (
	"fmt"
	"time"

	"bountywizard/internal/domain"
)

const maxTitleLength = 40

// Basics checks step 1: title, description, type, dominant core, mode and location.
func Basics(d domain.Draft) Result {
	c := &collector{draft: d}

	if title, ok := c.text(domain.FieldTitle, "Title is required"); ok {
		switch {
		case rules.Var(title, "required") != nil:
			c.fail(domain.FieldTitle, "Title is required")
		case rules.Var(title, fmt.Sprintf("max=%d", maxTitleLength)) != nil:
			c.fail(domain.FieldTitle, fmt.Sprintf("Title must be %d characters or less", maxTitleLength))
		}
	}
	if desc, ok := c.text(domain.FieldDescription, "Description is required"); ok && rules.Var(desc, "required") != nil {
		c.fail(domain.FieldDescription, "Description is required")
	}
	c.enum(domain.FieldType, "Type is required", joinOptions(domain.BountyTypes))
	c.enum(domain.FieldDominantCore, "Dominant core is required", joinOptions(domain.DominantCores))
	c.enum(domain.FieldMode, "Mode is required", joinOptions(domain.Modes))

	if mode, _ := d.String(domain.FieldMode); mode == string(domain.ModePhysical) {
		loc, _ := d.String(domain.FieldLocation)
		if !notBlank(loc) {
			c.fail(domain.FieldLocation, "Location is required for physical mode")
		}
	}
	return c.result(domain.StepBasics, d.Clone())
}

// Rewards checks step 2: reward, timeline, SDGs and the impact certificate brief.
// The expiration date must be strictly after now.
func Rewards(d domain.Draft, now time.Time) Result {
	c := &collector{draft: d}

	c.enum(domain.FieldRewardCurrency, "Currency is required", joinOptions(domain.Currencies))

	if v, ok := d.Get(domain.FieldRewardAmount); !ok || v == nil {
		c.fail(domain.FieldRewardAmount, "Amount is required")
	} else if amount, ok := domain.Number(v); !ok {
		c.fail(domain.FieldRewardAmount, "Expected a number")
	} else if rules.Var(amount, "gt=0") != nil {
		c.fail(domain.FieldRewardAmount, "Amount must be greater than 0")
	}
	c.integer(domain.FieldRewardWinners, "Number of winners is required", "min=1", "At least one winner is required")

	if v, ok := d.Get(domain.FieldExpirationDate); !ok || v == nil || v == "" {
		c.fail(domain.FieldExpirationDate, "Expiration date is required")
	} else if ts, ok := domain.Timestamp(v); !ok {
		c.fail(domain.FieldExpirationDate, "Invalid date")
	} else if !ts.After(now) {
		c.fail(domain.FieldExpirationDate, "Expiration date must be in the future")
	}
	c.integer(domain.FieldEstimatedDays, "Days are required", "min=0", "Days cannot be negative")
	c.integer(domain.FieldEstimatedHours, "Hours are required", "min=0,max=23", "Hours must be between 0 and 23")
	c.integer(domain.FieldEstimatedMinutes, "Minutes are required", "min=0,max=59", "Minutes must be between 0 and 59")

	raw, _ := d.Get(domain.FieldSDGs)
	sdgs, ok := domain.StringList(raw)
	switch {
	case raw != nil && !ok:
		c.fail(domain.FieldSDGs, "Expected a list of SDGs")
	case len(sdgs) == 0:
		c.fail(domain.FieldSDGs, "Select at least one SDG")
	default:
		for _, tag := range sdgs {
			if !domain.IsSDG(tag) {
				c.fail(domain.FieldSDGs, "Unknown SDG "+tag)
			}
		}
	}

	if d.Bool(domain.FieldHasImpactCertificate) {
		brief, _ := d.String(domain.FieldImpactBriefMessage)
		if !notBlank(brief) {
			c.fail(domain.FieldImpactBriefMessage, "Impact brief message is required when an impact certificate is requested")
		}
	}
	return c.result(domain.StepRewards, d.Clone())
}

// Backer checks step 3. When no backer is requested the normalized draft drops
// the backer record.
func Backer(d domain.Draft) Result {
	c := &collector{draft: d}

	if !d.Bool(domain.FieldTermsAccepted) {
		c.fail(domain.FieldTermsAccepted, "You must accept the terms and conditions")
	}
	normalized := d.Clone()
	if d.Bool(domain.FieldHasBacker) {
		if name, ok := c.text(domain.FieldBackerName, "Backer name is required"); ok && !notBlank(name) {
			c.fail(domain.FieldBackerName, "Backer name is required")
		}
		if logo, ok := c.text(domain.FieldBackerLogo, "Backer logo is required"); ok {
			switch {
			case rules.Var(logo, "required") != nil:
				c.fail(domain.FieldBackerLogo, "Backer logo is required")
			case rules.Var(logo, "url") != nil:
				c.fail(domain.FieldBackerLogo, "Backer logo must be a valid URL")
			}
		}
	} else {
		normalized.Delete(domain.FieldBacker)
	}
	return c.result(domain.StepBacker, normalized)
}
