package api

import (
	"encoding/csv"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/TimurManjosov/chainrules/internal/audit"
)

const maxAuditLimit = 1000

type auditEntryInfo struct {
	audit.Entry
	Verified bool `json:"verified"`
}

type listAuditResponse struct {
	Entries []auditEntryInfo `json:"entries"`
	Count   int              `json:"count"`
}

// handleAuditLog handles GET /v1/audit (admin).
// Query: event, since, until (RFC3339), limit, format (json|jsonl|csv).
func (s *Server) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := audit.Filter{Event: audit.Event(q.Get("event"))}
	fields := map[string]string{}

	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			fields["since"] = "since must be an RFC3339 timestamp"
		}
		f.Since = t
	}
	if v := q.Get("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			fields["until"] = "until must be an RFC3339 timestamp"
		}
		f.Until = t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxAuditLimit {
			fields["limit"] = "limit must be between 1 and 1000"
		}
		f.Limit = n
	}
	format := q.Get("format")
	if format == "" {
		format = "json"
	}
	if format != "csv" && format != "json" && format != "jsonl" {
		fields["format"] = "format must be csv, json, or jsonl"
	}
	if len(fields) > 0 {
		BadRequestErrorWithFields(w, r, ErrCodeValidation, "Invalid query parameters", fields)
		return
	}

	entries := s.engine.GetAuditLog(f)
	infos := make([]auditEntryInfo, len(entries))
	for i, e := range entries {
		infos[i] = auditEntryInfo{Entry: e, Verified: s.engine.VerifyAuditEntry(e)}
	}

	switch format {
	case "csv":
		exportCSV(w, infos)
	case "jsonl":
		exportJSONL(w, infos)
	default:
		writeJSON(w, http.StatusOK, listAuditResponse{Entries: infos, Count: len(infos)})
	}
}

// exportCSV writes entries as CSV; details are embedded as a JSON column.
func exportCSV(w http.ResponseWriter, entries []auditEntryInfo) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=audit-log.csv")

	csvWriter := csv.NewWriter(w)
	defer csvWriter.Flush()

	if err := csvWriter.Write([]string{
		"ID", "Timestamp", "Event", "Actor", "RequestID", "IntegrityHash", "Verified", "Details",
	}); err != nil {
		// Header already sent, can't return error response
		return
	}
	for _, e := range entries {
		details, _ := json.Marshal(e.Details)
		if err := csvWriter.Write([]string{
			e.ID,
			e.Timestamp.Format(time.RFC3339Nano),
			string(e.Event),
			e.Actor,
			e.RequestID,
			e.IntegrityHash,
			strconv.FormatBool(e.Verified),
			string(details),
		}); err != nil {
			return
		}
	}
}

// exportJSONL writes one JSON object per line
func exportJSONL(w http.ResponseWriter, entries []auditEntryInfo) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Content-Disposition", "attachment; filename=audit-log.jsonl")

	encoder := json.NewEncoder(w)
	for _, e := range entries {
		if err := encoder.Encode(e); err != nil {
			return
		}
	}
}
