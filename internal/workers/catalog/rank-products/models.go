package rankproducts

import "github.com/EditMuse/EditMuse-sub002/internal/models"

// Input is the job variable document. Its fields are the ranking request.
type Input struct {
	models.RankingRequest
}

// Output is merged into the process instance variables.
type Output struct {
	SelectedHandles []string              `json:"selectedHandles"`
	Ranking         models.RankingOutcome `json:"ranking"`
}
