package notifier

import (
	"log"

	"github.com/osteele/liquid"

	"github.com/ignite/campaign-pilot/internal/domain"
)

// Fallback-text templates, one per stage. The fallback line is what shows
// in push notifications and clients that cannot render blocks.
const (
	prelaunchFallback          = `Campaign {{ campaign }} round {{ round }} is scheduled for {{ date }} at 09:15 UTC ({{ recipients }} recipients, range {{ range }})`
	preflightFallback          = `Pre-flight for {{ campaign }} round {{ round }}: {{ status }}`
	launchWarningFallback      = `{{ campaign }} round {{ round }} launches in 15 minutes ({{ recipients }} recipients)`
	launchConfirmationFallback = `{{ campaign }} round {{ round }} launched`
	wrapupFallback             = `Wrap-up for {{ campaign }} round {{ round }}: {{ delivered }} delivered ({{ delivery_rate }}% delivery)`
)

var fallbackTemplates = func() map[domain.Stage]*liquid.Template {
	engine := liquid.NewEngine()
	parse := func(src string) *liquid.Template {
		tpl, err := engine.ParseString(src)
		if err != nil {
			// Template sources are constants; a parse failure is a bug.
			panic(err)
		}
		return tpl
	}
	return map[domain.Stage]*liquid.Template{
		domain.StagePreLaunch:          parse(prelaunchFallback),
		domain.StagePreFlight:          parse(preflightFallback),
		domain.StageLaunchWarning:      parse(launchWarningFallback),
		domain.StageLaunchConfirmation: parse(launchConfirmationFallback),
		domain.StageWrapUp:             parse(wrapupFallback),
	}
}()

// fallbackText renders the stage's plain-text fallback line.
func fallbackText(stage domain.Stage, bindings map[string]interface{}) string {
	tpl, ok := fallbackTemplates[stage]
	if !ok {
		return ""
	}
	out, err := tpl.RenderString(bindings)
	if err != nil {
		log.Printf("[Notifier] Fallback template render failed for %s: %v", stage, err)
		return ""
	}
	return out
}

func baseBindings(s *domain.CampaignSchedule) map[string]interface{} {
	return map[string]interface{}{
		"campaign":   s.CampaignName,
		"round":      s.RoundNumber,
		"date":       s.ScheduledDate.Format("2006-01-02"),
		"recipients": s.RecipientCount,
		"range":      s.RecipientRange,
	}
}
