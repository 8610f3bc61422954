package httpapi

import (
	"net/http"
	"strings"

	"github.com/ent0n29/carecompanion/internal/observability"
)

// handleStageLatency reports rolling agent stage latencies (route,
// receptionist, clinical_kb, clinical_web, turn_total). ?stage=a,b narrows
// the report to the named stages.
func (s *Server) handleStageLatency(w http.ResponseWriter, r *http.Request) {
	var snap observability.LatencySnapshot
	if s.metrics != nil {
		snap = s.metrics.SnapshotStages()
	}
	if want := stageFilter(r.URL.Query().Get("stage")); len(want) > 0 {
		kept := snap.Stages[:0:0]
		for _, st := range snap.Stages {
			if want[st.Stage] {
				kept = append(kept, st)
			}
		}
		snap.Stages = kept
	}
	if snap.Stages == nil {
		snap.Stages = []observability.StageStats{}
	}
	respondJSON(w, http.StatusOK, snap)
}

func stageFilter(raw string) map[string]bool {
	want := map[string]bool{}
	for _, name := range strings.Split(raw, ",") {
		if name = strings.TrimSpace(name); name != "" {
			want[name] = true
		}
	}
	return want
}
