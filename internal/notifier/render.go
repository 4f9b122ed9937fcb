package notifier

import (
	"fmt"
	"strings"

	"github.com/ignite/campaign-pilot/internal/domain"
	"github.com/ignite/campaign-pilot/internal/metrics"
	"github.com/ignite/campaign-pilot/internal/slack"
	"github.com/ignite/campaign-pilot/internal/verification"
)

// Renderers are pure: schedule + collected data in, blocks + fallback out.

func renderPreLaunch(s *domain.CampaignSchedule) ([]slack.Block, string) {
	blocks := []slack.Block{
		slack.Header(fmt.Sprintf("📅 Campaign Scheduled: %s", s.CampaignName)),
		slack.FieldSection(
			slack.Text{Type: "mrkdwn", Text: fmt.Sprintf("*Round:*\n%d of 3", s.RoundNumber)},
			slack.Text{Type: "mrkdwn", Text: fmt.Sprintf("*Send time:*\n%s 09:15 UTC", s.ScheduledDate.Format("Mon 2006-01-02"))},
			slack.Text{Type: "mrkdwn", Text: fmt.Sprintf("*List:*\n%s", s.ListName)},
			slack.Text{Type: "mrkdwn", Text: fmt.Sprintf("*Recipients:*\n%d (range %s)", s.RecipientCount, s.RecipientRange)},
		),
		slack.Section(fmt.Sprintf("*Subject:* %s\n*Sender:* %s <%s>", s.Subject, s.SenderName, s.SenderEmail)),
	}
	return blocks, fallbackText(domain.StagePreLaunch, baseBindings(s))
}

func renderPreFlight(s *domain.CampaignSchedule, res *verification.Result) ([]slack.Block, string) {
	blocks := []slack.Block{
		slack.Header(fmt.Sprintf("%s Pre-Flight: %s (Round %d)", statusEmoji(res.Status), s.CampaignName, s.RoundNumber)),
		slack.Section(fmt.Sprintf("*Status:* %s", strings.ToUpper(string(res.Status)))),
	}

	if len(res.Checks) > 0 {
		var fields []slack.Text
		for check, passed := range res.Checks {
			mark := "✅"
			if !passed {
				mark = "❌"
			}
			fields = append(fields, slack.Text{Type: "mrkdwn", Text: fmt.Sprintf("%s %s", mark, check)})
		}
		blocks = append(blocks, slack.FieldSection(fields...))
	}
	if len(res.Issues) > 0 {
		var lines []string
		for _, issue := range res.Issues {
			lines = append(lines, fmt.Sprintf("• [%s] %s", issue.Severity, issue.Message))
		}
		blocks = append(blocks, slack.Section("*Issues:*\n"+strings.Join(lines, "\n")))
	}
	if res.AI != nil {
		blocks = append(blocks, slack.Divider(),
			slack.Section(fmt.Sprintf("*List quality:* %d/100", res.AI.ListQualityScore)))
		blocks = appendListSection(blocks, "Insights", res.AI.Insights)
		blocks = appendListSection(blocks, "Warnings", res.AI.Warnings)
		blocks = appendListSection(blocks, "Recommendations", res.AI.Recommendations)
	}
	if res.Summary != "" {
		blocks = append(blocks, slack.Section(res.Summary))
	}

	bindings := baseBindings(s)
	bindings["status"] = string(res.Status)
	return blocks, fallbackText(domain.StagePreFlight, bindings)
}

func renderLaunchWarning(s *domain.CampaignSchedule, res *verification.Result) ([]slack.Block, string) {
	blocks := []slack.Block{
		slack.Header(fmt.Sprintf("⏰ Launching in 15 minutes: %s (Round %d)", s.CampaignName, s.RoundNumber)),
		slack.FieldSection(
			slack.Text{Type: "mrkdwn", Text: fmt.Sprintf("*Recipients:*\n%d", s.RecipientCount)},
			slack.Text{Type: "mrkdwn", Text: fmt.Sprintf("*Subject:*\n%s", s.Subject)},
		),
	}
	if res != nil {
		line := fmt.Sprintf("Last-minute check: *%s*", strings.ToUpper(string(res.Status)))
		if res.Status == verification.StatusBlocked {
			line += " — launch will be held"
		}
		blocks = append(blocks, slack.Section(line))
	}
	return blocks, fallbackText(domain.StageLaunchWarning, baseBindings(s))
}

func renderLaunchConfirmation(s *domain.CampaignSchedule) ([]slack.Block, string) {
	blocks := []slack.Block{
		slack.Header(fmt.Sprintf("🚀 Launched: %s (Round %d)", s.CampaignName, s.RoundNumber)),
		slack.FieldSection(
			slack.Text{Type: "mrkdwn", Text: fmt.Sprintf("*Recipients:*\n%d (range %s)", s.RecipientCount, s.RecipientRange)},
			slack.Text{Type: "mrkdwn", Text: fmt.Sprintf("*List:*\n%s", s.ListName)},
		),
	}
	if s.ExternalCampaignID != nil {
		blocks = append(blocks, slack.Section(fmt.Sprintf("Platform campaign id: `%d`", *s.ExternalCampaignID)))
	}
	return blocks, fallbackText(domain.StageLaunchConfirmation, baseBindings(s))
}

func renderWrapUp(s *domain.CampaignSchedule, col *metrics.Collection) ([]slack.Block, string) {
	m := col.Persisted
	blocks := []slack.Block{
		slack.Header(fmt.Sprintf("📊 Wrap-Up: %s (Round %d)", s.CampaignName, s.RoundNumber)),
		slack.FieldSection(
			slack.Text{Type: "mrkdwn", Text: fmt.Sprintf("*Processed:*\n%d", m.Processed)},
			slack.Text{Type: "mrkdwn", Text: fmt.Sprintf("*Delivered:*\n%d (%.2f%%)", m.Delivered, m.DeliveryRate)},
			slack.Text{Type: "mrkdwn", Text: fmt.Sprintf("*Bounced:*\n%d (%.2f%%)", m.Bounced, m.BounceRate)},
			slack.Text{Type: "mrkdwn", Text: fmt.Sprintf("*Opens:*\n%s", rateOrPending(m.Opened, m.OpenRate))},
			slack.Text{Type: "mrkdwn", Text: fmt.Sprintf("*Clicks:*\n%s", rateOrPending(m.Clicked, m.ClickRate))},
			slack.Text{Type: "mrkdwn", Text: fmt.Sprintf("*Unsubscribes:*\n%d", m.Unsubscribed)},
		),
	}

	if col.Analysis != nil {
		if cmp := col.Analysis.Comparison; cmp != nil && cmp.Trend != "first_round" {
			var lines []string
			for _, d := range cmp.Deltas {
				lines = append(lines, fmt.Sprintf("• %s: %+.2f pp (%s)", d.Metric, d.Delta, d.Significance))
			}
			blocks = append(blocks, slack.Section(
				fmt.Sprintf("*Vs round %d:* trend %s\n%s", s.RoundNumber-1, cmp.Trend, strings.Join(lines, "\n"))))
		}
		if rep := col.Analysis.Report; rep != nil {
			blocks = append(blocks, slack.Divider(), slack.Section(rep.Summary))
			blocks = appendListSection(blocks, "Insights", rep.Insights)
			blocks = appendListSection(blocks, "Recommendations", rep.Recommendations)
			blocks = appendListSection(blocks, "Next steps", rep.NextSteps)
		}
		if col.Analysis.Degraded {
			blocks = append(blocks, slack.Section("_Assessment produced by rule-based fallback (model unavailable)._"))
		}
	}

	bindings := baseBindings(s)
	bindings["delivered"] = m.Delivered
	bindings["delivery_rate"] = fmt.Sprintf("%.2f", m.DeliveryRate)
	return blocks, fallbackText(domain.StageWrapUp, bindings)
}

func appendListSection(blocks []slack.Block, title string, items []string) []slack.Block {
	if len(items) == 0 {
		return blocks
	}
	var lines []string
	for _, item := range items {
		lines = append(lines, "• "+item)
	}
	return append(blocks, slack.Section(fmt.Sprintf("*%s:*\n%s", title, strings.Join(lines, "\n"))))
}

func rateOrPending(count int64, rate *float64) string {
	if rate == nil {
		return "n/a (nothing delivered)"
	}
	return fmt.Sprintf("%d (%.2f%%)", count, *rate)
}

func statusEmoji(s verification.Status) string {
	switch s {
	case verification.StatusReady:
		return "✅"
	case verification.StatusWarning:
		return "⚠️"
	default:
		return "🛑"
	}
}
