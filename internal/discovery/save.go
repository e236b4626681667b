package discovery

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// SaveResult summarizes a Save call.
type SaveResult struct {
	RunID   string   `json:"run_id"`
	Saved   int      `json:"saved"`
	Unknown []string `json:"unknown,omitempty"`
}

// Save persists a finished run and the keywords the user selected from it.
// selected holds keywords in any casing; an empty selection keeps every
// candidate. Selections that match no candidate are reported in
// SaveResult.Unknown and otherwise ignored. Saved keywords keep their rank
// order. The run and its keywords are written together or not at all.
func Save(ctx context.Context, store Store, req Request, res *Result, selected []string) (*SaveResult, error) {
	if res == nil {
		return nil, eris.New("save: nil result")
	}
	log := zap.L().With(zap.String("phase", "save"), zap.String("run_id", res.RunID))

	keep, unknown := selectCandidates(res.Candidates, selected)

	run := RunRecord{
		ID:          res.RunID,
		ClientID:    res.ClientID,
		Request:     req,
		Stats:       res.Stats,
		Failures:    len(res.Failures),
		Saved:       len(keep),
		StartedAt:   res.StartedAt,
		CompletedAt: res.CompletedAt,
	}
	n, err := store.SaveRun(ctx, run, keep)
	if err != nil {
		return nil, eris.Wrap(err, "save: run")
	}

	if len(unknown) > 0 {
		log.Warn("selected keywords not in result", zap.Strings("keywords", unknown))
	}
	log.Info("run saved", zap.Int64("keywords", n))

	return &SaveResult{RunID: res.RunID, Saved: int(n), Unknown: unknown}, nil
}

func selectCandidates(cands []Candidate, selected []string) ([]Candidate, []string) {
	if len(selected) == 0 {
		return cands, nil
	}

	want := make(map[string]bool, len(selected))
	var order []string
	for _, s := range selected {
		key := CanonicalKey(s)
		if _, seen := want[key]; key == "" || seen {
			continue
		}
		want[key] = false
		order = append(order, key)
	}

	var keep []Candidate
	for _, c := range cands {
		if _, ok := want[c.CanonicalKey]; ok {
			keep = append(keep, c)
			want[c.CanonicalKey] = true
		}
	}

	var unknown []string
	for _, key := range order {
		if !want[key] {
			unknown = append(unknown, key)
		}
	}
	return keep, unknown
}
