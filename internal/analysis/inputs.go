package analysis

import (
	"encoding/json"
	"fmt"
)

// The user prompts are JSON snapshots of the inputs. Keeping them as
// structured data rather than prose makes agent behavior reproducible.

func listQualityInput(in *Input) string {
	payload := map[string]interface{}{
		"campaign":        in.Schedule.CampaignName,
		"round":           in.Schedule.RoundNumber,
		"list_name":       in.Schedule.ListName,
		"recipient_count": in.Schedule.RecipientCount,
	}
	if in.ListStats != nil {
		payload["list"] = in.ListStats
	}
	if in.Reputation != nil {
		payload["sender_reputation"] = in.Reputation
	}
	return mustJSON(payload)
}

func deliveryInput(in *Input) string {
	return mustJSON(map[string]interface{}{
		"campaign": in.Schedule.CampaignName,
		"round":    in.Schedule.RoundNumber,
		"metrics":  in.Current,
	})
}

func comparisonInput(in *Input) string {
	payload := map[string]interface{}{
		"campaign": in.Schedule.CampaignName,
		"round":    in.Schedule.RoundNumber,
		"current":  in.Current,
	}
	if in.Previous != nil {
		payload["previous"] = in.Previous
	}
	return mustJSON(payload)
}

func recommendationInput(in *Input, res *Result) string {
	return mustJSON(map[string]interface{}{
		"campaign":        in.Schedule.CampaignName,
		"round":           in.Schedule.RoundNumber,
		"final_round":     in.Schedule.FinalRound(),
		"recipient_count": in.Schedule.RecipientCount,
		"list_quality":    res.ListQuality,
		"delivery":        res.Delivery,
		"comparison":      res.Comparison,
	})
}

func reportInput(in *Input, res *Result) string {
	return mustJSON(map[string]interface{}{
		"stage":          string(in.Stage),
		"campaign":       in.Schedule.CampaignName,
		"round":          in.Schedule.RoundNumber,
		"list_quality":   res.ListQuality,
		"delivery":       res.Delivery,
		"comparison":     res.Comparison,
		"recommendation": res.Recommendation,
	})
}

func mustJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		// Inputs are plain structs and maps; this cannot fail in practice.
		return fmt.Sprintf(`{"marshal_error":%q}`, err.Error())
	}
	return string(b)
}
