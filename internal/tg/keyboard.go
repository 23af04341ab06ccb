package tg

import (
	"fmt"

	"mediastash-tg-bot/internal/storage"
)

// SeasonChooser builds one selectable row per season of a series. The
// callback payload carries the composite series id + season number
// token that the delivery resolver consumes.
func SeasonChooser(s *storage.Series) [][]Choice {
	rows := make([][]Choice, 0, len(s.Seasons))
	for _, season := range s.Seasons {
		label := fmt.Sprintf("Season %d", season.Number)
		if season.Title != "" {
			label = fmt.Sprintf("Season %d: %s", season.Number, season.Title)
		}
		rows = append(rows, []Choice{{Label: label, Data: fmt.Sprintf("season:%s:%d", s.ID, season.Number)}})
	}
	return rows
}

// ConfirmChooser is the yes/no keyboard used by the delete flow.
func ConfirmChooser() [][]Choice {
	return [][]Choice{{
		{Label: "Yes, delete", Data: "confirm:yes"},
		{Label: "No, keep it", Data: "confirm:no"},
	}}
}

// FieldChooser lists the editable fields of a catalog record.
func FieldChooser() [][]Choice {
	return [][]Choice{
		{{Label: "Title", Data: "field:title"}, {Label: "Year", Data: "field:year"}},
		{{Label: "Genres", Data: "field:genres"}, {Label: "Description", Data: "field:description"}},
	}
}
