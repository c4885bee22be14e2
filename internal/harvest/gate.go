// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package harvest

import (
	"context"
	"fmt"
	"strings"

	"github.com/pdiddy/pdf-harvester/internal/browser"
	"github.com/pdiddy/pdf-harvester/internal/logger"
	"github.com/pdiddy/pdf-harvester/pkg/types"
)

// GateOutcome is the result of compliance gate resolution.
type GateOutcome int

const (
	// GateAbsent means no gate indicator was found.
	GateAbsent GateOutcome = iota
	// GateResolved means the configured profile was selected.
	GateResolved
	// GateManual means a human has to pass the gate.
	GateManual
)

func (o GateOutcome) String() string {
	switch o {
	case GateAbsent:
		return "absent"
	case GateResolved:
		return "resolved"
	case GateManual:
		return "manual_required"
	}
	return "unknown"
}

// GateDecision pairs an outcome with a diagnostic note.
type GateDecision struct {
	Outcome GateOutcome
	Note    string
}

// Handled reports whether the pipeline may continue past the gate.
func (d GateDecision) Handled() bool {
	return d.Outcome != GateManual
}

// Action tags recorded by the gate resolver.
const (
	ActionGateDetected  = "gate_detected"
	ActionGateContinued = "gate_continued"
)

// GateSelectedAction is the tag recorded when profile's label is clicked.
func GateSelectedAction(profile types.InvestorProfile) string {
	return "gate_selected_" + string(profile)
}

// DetectGate reports whether text contains any gate hint, case-insensitively.
func DetectGate(text string, hints []string) bool {
	return containsAny(text, hints)
}

// ResolveGate checks the page for an investor-certification gate and, when
// a profile is configured and its label is clickable, passes it. It never
// guesses: an unknown profile or a missing label yields GateManual.
func (h *Harvester) ResolveGate(ctx context.Context, page browser.Page, r *types.HarvestResult) GateDecision {
	if !DetectGate(h.visibleText(ctx, page), h.cfg.Policy.GateHints) {
		return GateDecision{Outcome: GateAbsent, Note: "no_gate"}
	}
	r.AddAction(ActionGateDetected)

	profile := h.cfg.Profile
	if profile == "" || profile == types.ProfileUnknown {
		return GateDecision{Outcome: GateManual, Note: "Gate detected; profile=unknown => manual required."}
	}

	labels := h.cfg.Policy.ProfileLabels[profile]
	if len(labels) == 0 {
		return GateDecision{Outcome: GateManual, Note: fmt.Sprintf("Gate detected; no mapping for profile=%s.", profile)}
	}

	if !FindAndClick(ctx, page, browser.Phrases(labels...), h.cfg.Timeouts.Click) {
		return GateDecision{
			Outcome: GateManual,
			Note:    fmt.Sprintf("Gate detected; could not find clickable option for profile=%s.", profile),
		}
	}
	r.AddAction(GateSelectedAction(profile))
	h.log.Debug("gate profile selected", logger.String("profile", string(profile)))

	// Selecting a profile often reveals a second consent layer.
	pause(ctx, h.cfg.Pauses.GateSettle)
	h.HandleCookies(ctx, page, r)
	h.CloseModals(ctx, page, r)
	FindAndClick(ctx, page, browser.Phrases(h.cfg.Policy.GateContinueTexts...), h.cfg.Timeouts.Click)
	r.AddAction(ActionGateContinued)

	return GateDecision{Outcome: GateResolved, Note: fmt.Sprintf("Gate handled using profile=%s.", profile)}
}

func containsAny(text string, needles []string) bool {
	t := strings.ToLower(text)
	for _, n := range needles {
		if n != "" && strings.Contains(t, strings.ToLower(n)) {
			return true
		}
	}
	return false
}
