package delegation

import (
	"sort"

	"github.com/shaiso/AgentSquad/internal/domain"
)

// Веса оценки исполнителя.
const (
	ExactRoleScore      = 10
	SpecializationScore = 2
	CompatibleRoleScore = 5
)

// Candidate — исполнитель с оценкой.
type Candidate struct {
	Worker domain.Worker `json:"worker"`
	Score  int           `json:"score"`
}

// ScoreWorker оценивает исполнителя для требований.
//
// +10 за точное совпадение роли, иначе +5 за совместимую роль
// (по таблице или по Capabilities исполнителя), +2 за каждую
// специализацию, найденную среди навыков задачи.
func ScoreWorker(w domain.Worker, req Requirements) int {
	score := 0

	switch {
	case w.Role == req.Role:
		score += ExactRoleScore
	case IsCompatible(req.Role, w.Role) || w.HasCapability(req.Role):
		score += CompatibleRoleScore
	}

	for _, tag := range w.Specializations {
		if req.HasSkill(tag) {
			score += SpecializationScore
		}
	}

	return score
}

// RankWorkers возвращает доступных исполнителей по убыванию оценки.
// При равенстве выше тот, у кого меньше нагрузка, затем меньший ID.
func RankWorkers(req Requirements, roster []domain.Worker) []Candidate {
	candidates := make([]Candidate, 0, len(roster))
	for _, w := range roster {
		if !w.Available {
			continue
		}
		candidates = append(candidates, Candidate{Worker: w, Score: ScoreWorker(w, req)})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Worker.CurrentLoad != b.Worker.CurrentLoad {
			return a.Worker.CurrentLoad < b.Worker.CurrentLoad
		}
		return a.Worker.ID < b.Worker.ID
	})

	return candidates
}

// FindBestWorker возвращает лучшего исполнителя.
//
// Возвращает ErrNoEligibleWorker, если доступных нет или лучшая
// оценка не больше нуля.
func FindBestWorker(req Requirements, roster []domain.Worker) (Candidate, error) {
	ranked := RankWorkers(req, roster)
	if len(ranked) == 0 || ranked[0].Score <= 0 {
		return Candidate{}, ErrNoEligibleWorker
	}
	return ranked[0], nil
}
