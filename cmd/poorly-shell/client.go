package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/tomasleon/poorly/internal/core"
)

// apiClient is a thin wrapper over the REST frontend's JSON conventions:
// a JSON array of row objects on success, a JSON string on error.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{baseURL: strings.TrimRight(baseURL, "/"), http: &http.Client{}}
}

func (c *apiClient) request(method, path string, query url.Values, body interface{}) ([]map[string]interface{}, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, u, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		var msg string
		if err := json.Unmarshal(data, &msg); err != nil || msg == "" {
			msg = string(data)
		}
		return nil, fmt.Errorf("%s", msg)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var rows []map[string]interface{}
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, nil
	}
	return rows, nil
}

func parseLiteral(s string) interface{} {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

func splitPairs(s string) ([]string, error) {
	if s == "" || s == "_" {
		return nil, nil
	}
	return strings.Split(s, ","), nil
}

func parseKeyVals(s string) (map[string]interface{}, error) {
	parts, err := splitPairs(s)
	if err != nil {
		return nil, err
	}
	out := make(map[string]interface{}, len(parts))
	for _, part := range parts {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid key=value pair %q", part)
		}
		out[kv[0]] = parseLiteral(kv[1])
	}
	return out, nil
}

func parseStringPairs(s string) (map[string]string, error) {
	parts, err := splitPairs(s)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(parts))
	for _, part := range parts {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid key=value pair %q", part)
		}
		out[kv[0]] = kv[1]
	}
	return out, nil
}

func splitCSV(s string) []string {
	if s == "" || s == "_" {
		return nil
	}
	return strings.Split(s, ",")
}

func filterQuery(conditions map[string]interface{}) (url.Values, error) {
	q := url.Values{}
	if len(conditions) == 0 {
		return q, nil
	}
	data, err := json.Marshal(conditions)
	if err != nil {
		return nil, err
	}
	q.Set("filter", string(data))
	return q, nil
}

// dispatch parses one shell line ("Verb arg1 arg2 key=val,key=val") and
// issues the matching REST call. The verb set and positional shape mirror
// this engine's query variants one for one.
func dispatch(line string, c *apiClient) ([]map[string]interface{}, error) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil, nil
	}
	verb, args := parts[0], parts[1:]

	switch verb {
	case "Select":
		if len(args) != 4 {
			return nil, fmt.Errorf("usage: Select db table columns conditions")
		}
		db, table, columnsArg, condArg := args[0], args[1], args[2], args[3]
		q := url.Values{}
		if cols := splitCSV(columnsArg); len(cols) > 0 {
			q.Set("columns", strings.Join(cols, ","))
		}
		conds, err := parseKeyVals(condArg)
		if err != nil {
			return nil, err
		}
		fq, err := filterQuery(conds)
		if err != nil {
			return nil, err
		}
		for k, v := range fq {
			q[k] = v
		}
		return c.request(http.MethodGet, "/"+db+"/"+table, q, nil)

	case "Insert":
		if len(args) != 3 {
			return nil, fmt.Errorf("usage: Insert db table values")
		}
		db, table, valuesArg := args[0], args[1], args[2]
		values, err := parseKeyVals(valuesArg)
		if err != nil {
			return nil, err
		}
		return c.request(http.MethodPost, "/"+db+"/"+table, nil, values)

	case "Update":
		if len(args) != 4 {
			return nil, fmt.Errorf("usage: Update db table set conditions")
		}
		db, table, setArg, condArg := args[0], args[1], args[2], args[3]
		set, err := parseKeyVals(setArg)
		if err != nil {
			return nil, err
		}
		conds, err := parseKeyVals(condArg)
		if err != nil {
			return nil, err
		}
		q, err := filterQuery(conds)
		if err != nil {
			return nil, err
		}
		return c.request(http.MethodPut, "/"+db+"/"+table, q, map[string]interface{}{"set": set})

	case "Delete":
		if len(args) != 3 {
			return nil, fmt.Errorf("usage: Delete db table conditions")
		}
		db, table, condArg := args[0], args[1], args[2]
		conds, err := parseKeyVals(condArg)
		if err != nil {
			return nil, err
		}
		q, err := filterQuery(conds)
		if err != nil {
			return nil, err
		}
		return c.request(http.MethodDelete, "/"+db+"/"+table, q, nil)

	case "Create":
		if len(args) != 3 {
			return nil, fmt.Errorf("usage: Create db table name=type,...")
		}
		db, table, columnsArg := args[0], args[1], args[2]
		colTypes, err := parseStringPairs(columnsArg)
		if err != nil {
			return nil, err
		}
		var columns []map[string]string
		for name, typ := range colTypes {
			if _, err := core.ParseDataType(typ); err != nil {
				return nil, err
			}
			columns = append(columns, map[string]string{"name": name, "type": typ})
		}
		return c.request(http.MethodPost, "/"+db+"/create/"+table, nil, map[string]interface{}{"columns": columns})

	case "CreateDb":
		if len(args) != 1 && len(args) != 2 {
			return nil, fmt.Errorf("usage: CreateDb name [kind]")
		}
		kind := "poorly"
		if len(args) == 2 {
			kind = args[1]
		}
		return c.request(http.MethodPost, "/"+args[0], nil, map[string]interface{}{"kind": kind})

	case "Drop":
		if len(args) != 2 {
			return nil, fmt.Errorf("usage: Drop db table")
		}
		return c.request(http.MethodDelete, "/"+args[0]+"/drop/"+args[1], nil, nil)

	case "DropDb":
		if len(args) != 1 {
			return nil, fmt.Errorf("usage: DropDb name")
		}
		return c.request(http.MethodDelete, "/"+args[0], nil, nil)

	case "Alter":
		if len(args) != 3 {
			return nil, fmt.Errorf("usage: Alter db table old=new,...")
		}
		db, table, renameArg := args[0], args[1], args[2]
		rename, err := parseStringPairs(renameArg)
		if err != nil {
			return nil, err
		}
		pairs := make([]string, 0, len(rename))
		for k, v := range rename {
			pairs = append(pairs, k+":"+v)
		}
		q := url.Values{}
		q.Set("renamings", strings.Join(pairs, ","))
		return c.request(http.MethodPut, "/"+db+"/alter/"+table, q, nil)

	case "ShowTables":
		if len(args) != 1 {
			return nil, fmt.Errorf("usage: ShowTables db")
		}
		return c.request(http.MethodGet, "/"+args[0], nil, nil)

	case "Join":
		if len(args) != 6 {
			return nil, fmt.Errorf("usage: Join db table1 table2 columns conditions join_on")
		}
		db, t1, t2, columnsArg, condArg, onArg := args[0], args[1], args[2], args[3], args[4], args[5]
		conds, err := parseKeyVals(condArg)
		if err != nil {
			return nil, err
		}
		q, err := filterQuery(conds)
		if err != nil {
			return nil, err
		}
		if cols := splitCSV(columnsArg); len(cols) > 0 {
			q.Set("columns", strings.Join(cols, ","))
		}
		onPairs, err := parseStringPairs(onArg)
		if err != nil {
			return nil, err
		}
		on := make([]string, 0, len(onPairs))
		for k, v := range onPairs {
			on = append(on, k+"="+v)
		}
		q.Set("on", strings.Join(on, ","))
		return c.request(http.MethodPut, "/"+db+"/"+t1+"/"+t2, q, nil)

	default:
		return nil, fmt.Errorf("unknown command %q", verb)
	}
}
