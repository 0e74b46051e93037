package game

import "github.com/tatianab/b40-life-sim/internal/models"

// ObjectiveItem is the status of one weekly objective.
type ObjectiveItem struct {
	Type     models.ObjectiveType `json:"type"`
	Complete bool                 `json:"complete"`
	Required bool                 `json:"required"`
	Progress int                  `json:"progress"`
	Target   int                  `json:"target"`
}

// ObjectiveStatus summarises the mandatory tasks of a week.
type ObjectiveStatus struct {
	Items               []ObjectiveItem `json:"items"`
	AllRequiredComplete bool            `json:"all_required_complete"`
}

// Item returns the entry for an objective, if it is tracked this week.
func (st ObjectiveStatus) Item(t models.ObjectiveType) (ObjectiveItem, bool) {
	for _, it := range st.Items {
		if it.Type == t {
			return it, true
		}
	}
	return ObjectiveItem{}, false
}

// WeeklyObjectives computes objective completion for a week. The debt
// payment only exists in week 4; in other weeks it is not listed at all.
func WeeklyObjectives(o models.WeeklyObjectives, week int) ObjectiveStatus {
	items := []ObjectiveItem{
		{
			Type:     models.ObjectiveWork,
			Complete: o.WorkDaysCompleted >= models.WorkDaysRequired,
			Required: true,
			Progress: o.WorkDaysCompleted,
			Target:   models.WorkDaysRequired,
		},
		flagItem(models.ObjectiveGroceries, o.BoughtGroceries),
		flagItem(models.ObjectivePetrol, o.FilledPetrol),
	}
	if week == models.DebtWeek {
		items = append(items, flagItem(models.ObjectiveDebt, o.PaidDebt))
	}

	all := true
	for _, it := range items {
		if it.Required && !it.Complete {
			all = false
		}
	}
	return ObjectiveStatus{Items: items, AllRequiredComplete: all}
}

func flagItem(t models.ObjectiveType, done bool) ObjectiveItem {
	it := ObjectiveItem{Type: t, Complete: done, Required: true, Target: 1}
	if done {
		it.Progress = 1
	}
	return it
}
