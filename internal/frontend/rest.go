// Package frontend implements the REST surface described in spec.md §6.
// It never touches storage directly: every request becomes a core.Query
// handed to the engine, and every response is the engine's result rows
// (or error) marshaled to JSON.
package frontend

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/julienschmidt/httprouter"

	"github.com/tomasleon/poorly/internal/core"
	"github.com/tomasleon/poorly/internal/engine"
)

// Server routes HTTP requests to an engine.Engine.
type Server struct {
	engine *engine.Engine
	log    *core.Logger
	router *httprouter.Router
}

// New builds a Server wired to e. Call Handler to get the http.Handler to
// serve, or ListenAndServe to run it directly.
func New(e *engine.Engine, log *core.Logger) *Server {
	if log == nil {
		log = core.Discard
	}
	s := &Server{engine: e, log: log, router: httprouter.New()}

	s.router.GET("/:db/:table", s.handleSelect)
	s.router.GET("/:db", s.handleShowTables)
	s.router.POST("/:db", s.handleCreateDb)
	s.router.DELETE("/:db", s.handleDropDb)

	// POST, PUT, and DELETE each overload the two-and-three segment shapes
	// under a database (row op vs. create/drop/alter/join), which
	// httprouter cannot express as separate static+wildcard routes at the
	// same tree position, so each is dispatched from one catch-all.
	s.router.POST("/:db/*rest", s.handlePost)
	s.router.PUT("/:db/*rest", s.handlePut)
	s.router.DELETE("/:db/*rest", s.handleDelete)

	return s
}

// Handler returns the http.Handler serving the REST surface.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts the REST frontend on addr and blocks until it
// exits.
func (s *Server) ListenAndServe(addr string) error {
	s.log.Info("REST frontend listening on %s", addr)
	return http.ListenAndServe(addr, s.router)
}

func restSegments(rest string) []string {
	rest = strings.TrimPrefix(rest, "/")
	if rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}

func statusFor(err error) int {
	switch err.(type) {
	case *core.DatabaseNotFoundError, *core.TableNotFoundError, *core.ColumnNotFoundError:
		return http.StatusNotFound
	case *core.MissingColumnError, *core.ExtraColumnError, *core.TypeError,
		*core.DatabaseAlreadyExistsError, *core.TableAlreadyExistsError, *core.ColumnAlreadyExistsError,
		*core.InvalidNameError, *core.NoColumnsError, *core.InvalidEmailError,
		*core.UnsupportedColumnTypeError, *core.CannotDropDefaultDbError:
		return http.StatusBadRequest
	case *core.CorruptRowError, *core.CorruptDatabaseError, *core.IOError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), err.Error())
}

func respond(w http.ResponseWriter, rows []core.ColumnSet, err error, okStatus int) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, okStatus, rowsToJSON(rows))
}

func rowsToJSON(rows []core.ColumnSet) []map[string]interface{} {
	out := make([]map[string]interface{}, len(rows))
	for i, row := range rows {
		m := make(map[string]interface{}, len(row))
		for k, v := range row {
			m[k] = valueToJSON(v)
		}
		out[i] = m
	}
	return out
}

func valueToJSON(v core.Value) interface{} {
	switch v.Kind {
	case core.DataTypeInt:
		return v.I
	case core.DataTypeFloat:
		return v.F
	case core.DataTypeChar:
		return string(v.C)
	case core.DataTypeString, core.DataTypeEmail:
		return v.S
	case core.DataTypeSerial:
		return v.Serial()
	case core.DataTypeCharInterval:
		return []string{string(v.LoC), string(v.HiC)}
	case core.DataTypeStringInterval:
		return []string{v.LoS, v.HiS}
	default:
		return nil
	}
}

// decodeLiteral converts one JSON-decoded value into a core.Value. Plain
// scalars map to int/float/string; a two-element array of one-rune
// strings becomes a char interval, any other two-element string array a
// string interval; a {"type": ..., "value": ...} object is the escape
// hatch for char, email, and serial literals a plain JSON scalar can't
// express unambiguously.
func decodeLiteral(raw interface{}) (core.Value, error) {
	switch v := raw.(type) {
	case float64:
		if v == float64(int64(v)) {
			return core.IntValue(int64(v)), nil
		}
		return core.FloatValue(v), nil
	case string:
		return core.StringValue(v), nil
	case []interface{}:
		if len(v) != 2 {
			return core.Value{}, fmt.Errorf("interval literal needs exactly two bounds")
		}
		lo, ok1 := v[0].(string)
		hi, ok2 := v[1].(string)
		if !ok1 || !ok2 {
			return core.Value{}, fmt.Errorf("interval literal bounds must be strings")
		}
		if isSingleRune(lo) && isSingleRune(hi) {
			loR, _ := utf8.DecodeRuneInString(lo)
			hiR, _ := utf8.DecodeRuneInString(hi)
			return core.NewCharInterval(loR, hiR)
		}
		return core.NewStringInterval(lo, hi)
	case map[string]interface{}:
		return decodeTypedLiteral(v)
	default:
		return core.Value{}, fmt.Errorf("unsupported literal %v", raw)
	}
}

func isSingleRune(s string) bool {
	r, size := utf8.DecodeRuneInString(s)
	return r != utf8.RuneError && size == len(s)
}

func decodeTypedLiteral(v map[string]interface{}) (core.Value, error) {
	kind, _ := v["type"].(string)
	switch kind {
	case "char":
		s, _ := v["value"].(string)
		if !isSingleRune(s) {
			return core.Value{}, fmt.Errorf("char literal must be exactly one rune")
		}
		r, _ := utf8.DecodeRuneInString(s)
		return core.CharValue(r), nil
	case "email":
		s, _ := v["value"].(string)
		val := core.EmailValue(s)
		return val, val.Validate()
	case "serial":
		n, _ := v["value"].(float64)
		return core.SerialValue(uint32(n)), nil
	default:
		return core.Value{}, fmt.Errorf("unknown typed literal %q", kind)
	}
}

func decodeColumnSet(raw map[string]interface{}) (core.ColumnSet, error) {
	if raw == nil {
		return nil, nil
	}
	out := make(core.ColumnSet, len(raw))
	for k, v := range raw {
		val, err := decodeLiteral(v)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", k, err)
		}
		out[k] = val
	}
	return out, nil
}

func parseFilter(r *http.Request) (core.ColumnSet, error) {
	filter := r.URL.Query().Get("filter")
	if filter == "" {
		return nil, nil
	}
	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(filter), &raw); err != nil {
		return nil, fmt.Errorf("invalid filter: %w", err)
	}
	return decodeColumnSet(raw)
}

func parseColumns(r *http.Request) []string {
	raw := r.URL.Query().Get("columns")
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

// parsePairs parses a comma-separated list of key/value pairs joined by
// sep, e.g. "a:b,c:d" with sep ":".
func parsePairs(raw, sep string) map[string]string {
	if raw == "" {
		return nil
	}
	out := make(map[string]string)
	for _, part := range strings.Split(raw, ",") {
		kv := strings.SplitN(part, sep, 2)
		if len(kv) != 2 {
			continue
		}
		out[kv[0]] = kv[1]
	}
	return out
}

func decodeBody(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil && err.Error() != "EOF" {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	conditions, err := parseFilter(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, err.Error())
		return
	}
	rows, err := s.engine.Execute(core.Query{
		Op:         core.OpSelect,
		DB:         ps.ByName("db"),
		Table:      ps.ByName("table"),
		Conditions: conditions,
		Columns:    parseColumns(r),
	})
	respond(w, rows, err, http.StatusOK)
}

func (s *Server) handleShowTables(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	rows, err := s.engine.Execute(core.Query{Op: core.OpShowTables, DB: ps.ByName("db")})
	respond(w, rows, err, http.StatusOK)
}

func (s *Server) handleCreateDb(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var body struct {
		Kind string `json:"kind"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.Kind == "" {
		body.Kind = "poorly"
	}
	_, err := s.engine.Execute(core.Query{Op: core.OpCreateDb, Name: ps.ByName("db"), Kind: body.Kind})
	respond(w, nil, err, http.StatusCreated)
}

func (s *Server) handleDropDb(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	_, err := s.engine.Execute(core.Query{Op: core.OpDropDb, Name: ps.ByName("db")})
	respond(w, nil, err, http.StatusOK)
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	db := ps.ByName("db")
	segments := restSegments(ps.ByName("rest"))

	switch {
	case len(segments) == 2 && segments[0] == "create":
		var body struct {
			Columns []struct {
				Name string `json:"name"`
				Type string `json:"type"`
			} `json:"columns"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeJSON(w, http.StatusBadRequest, err.Error())
			return
		}
		defs := make([]core.ColumnDef, len(body.Columns))
		for i, c := range body.Columns {
			dt, err := core.ParseDataType(c.Type)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, err.Error())
				return
			}
			defs[i] = core.ColumnDef{Name: c.Name, Type: dt}
		}
		_, err := s.engine.Execute(core.Query{Op: core.OpCreate, DB: db, Table: segments[1], NewColumns: defs})
		respond(w, nil, err, http.StatusCreated)

	case len(segments) == 1:
		var raw map[string]interface{}
		if err := decodeBody(r, &raw); err != nil {
			writeJSON(w, http.StatusBadRequest, err.Error())
			return
		}
		values, err := decodeColumnSet(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, err.Error())
			return
		}
		_, err = s.engine.Execute(core.Query{Op: core.OpInsert, DB: db, Into: segments[0], Values: values})
		respond(w, nil, err, http.StatusCreated)

	default:
		writeJSON(w, http.StatusBadRequest, fmt.Sprintf("unrecognized path /%s/%s", db, ps.ByName("rest")))
	}
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	db := ps.ByName("db")
	segments := restSegments(ps.ByName("rest"))

	switch {
	case len(segments) == 2 && segments[0] == "alter":
		rename := parsePairs(r.URL.Query().Get("renamings"), ":")
		_, err := s.engine.Execute(core.Query{Op: core.OpAlter, DB: db, Table: segments[1], Rename: rename})
		respond(w, nil, err, http.StatusOK)

	case len(segments) == 1:
		conditions, err := parseFilter(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, err.Error())
			return
		}
		var body struct {
			Set map[string]interface{} `json:"set"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeJSON(w, http.StatusBadRequest, err.Error())
			return
		}
		set, err := decodeColumnSet(body.Set)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, err.Error())
			return
		}
		rows, err := s.engine.Execute(core.Query{Op: core.OpUpdate, DB: db, Table: segments[0], Conditions: conditions, Set: set})
		respond(w, rows, err, http.StatusOK)

	case len(segments) == 2:
		conditions, err := parseFilter(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, err.Error())
			return
		}
		on := parsePairs(r.URL.Query().Get("on"), "=")
		rows, err := s.engine.Execute(core.Query{
			Op: core.OpJoin, DB: db,
			Table1: segments[0], Table2: segments[1],
			JoinOn:     on,
			Conditions: conditions,
			Columns:    parseColumns(r),
		})
		respond(w, rows, err, http.StatusOK)

	default:
		writeJSON(w, http.StatusBadRequest, fmt.Sprintf("unrecognized path /%s/%s", db, ps.ByName("rest")))
	}
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	db := ps.ByName("db")
	segments := restSegments(ps.ByName("rest"))

	switch {
	case len(segments) == 2 && segments[0] == "drop":
		_, err := s.engine.Execute(core.Query{Op: core.OpDrop, DB: db, Table: segments[1]})
		respond(w, nil, err, http.StatusOK)

	case len(segments) == 1:
		conditions, err := parseFilter(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, err.Error())
			return
		}
		rows, err := s.engine.Execute(core.Query{Op: core.OpDelete, DB: db, Table: segments[0], Conditions: conditions})
		respond(w, rows, err, http.StatusOK)

	default:
		writeJSON(w, http.StatusBadRequest, fmt.Sprintf("unrecognized path /%s/%s", db, ps.ByName("rest")))
	}
}
