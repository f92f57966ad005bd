package server

import (
	"encoding/json"
	"net/http"
)

// HandleAdminConfig 提供房间规则的读取与热更新
// GET /admin/config  返回当前配置
// POST /admin/config 以 JSON 载荷更新部分字段，如 {"boundsCheck":false}
func (s *Server) HandleAdminConfig(w http.ResponseWriter, r *http.Request) {
	var patch RoomConfigPatch
	switch r.Method {
	case http.MethodGet:
	case http.MethodPost:
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cur, err := s.room.Config(r.Context(), patch)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, cur)
}

// HandleMetrics 输出房间状态与运行指标
// GET /metrics
func (s *Server) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	st, err := s.room.Status(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, map[string]any{
		"status":      st.Status,
		"players":     st.Players,
		"tick":        st.TickSeq,
		"connections": s.Connections(),
		"metrics":     s.room.Metrics().Snapshot(),
	})
}

// HandleHealthz 房间 actor 能应答即视为健康
func (s *Server) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.room.Status(r.Context()); err != nil {
		http.Error(w, "room unavailable", http.StatusServiceUnavailable)
		return
	}
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
