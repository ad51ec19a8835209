package model

// MaxTeamsPerResource caps how many teams may select one problem statement.
const MaxTeamsPerResource = 4

type Resource struct {
	ID             string   `json:"problem_statement_id"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	MaxTeams       int      `json:"max_teams"`
	SelectedCount  int      `json:"selected_count"`
	SelectingTeams []string `json:"selecting_teams"`
}

func (r *Resource) Available() bool {
	return r.SelectedCount < r.MaxTeams
}
