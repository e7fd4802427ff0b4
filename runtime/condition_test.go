package runtime

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warriorguo/eventflow/types"
)

func TestCompare(t *testing.T) {
	cases := []struct {
		actual   any
		op       types.Operator
		expected any
		result   bool
	}{
		{"whatsapp", types.OpEquals, "whatsapp", true},
		{"whatsapp", types.OpEquals, "WhatsApp", false},
		{42, types.OpEquals, "42", true},
		{42.0, types.OpEquals, 42, true},
		{true, types.OpEquals, "true", true},
		{"whatsapp", types.OpNotEquals, "website", true},
		{"whatsapp", types.OpNotEquals, "whatsapp", false},
		{"lead from whatsapp ads", types.OpContains, "whatsapp", true},
		{"lead from website", types.OpContains, "whatsapp", false},
		{[]any{"vip", "new"}, types.OpContains, "vip", true},
		{150, types.OpGreaterThan, 100, true},
		{"150", types.OpGreaterThan, "100", true},
		{100, types.OpGreaterThan, 100, false},
		{"abc", types.OpGreaterThan, 1, false},
		{"", types.OpGreaterThan, -1, false},
		{math.NaN(), types.OpGreaterThan, 1, false},
		{nil, types.OpLessThan, 1, false},
		{3, types.OpLessThan, 3.5, true},
		{" 7 ", types.OpLessThan, "8", true},
		{3, types.OpLessThan, "abc", false},
		{"x", "MATCHES", "x", false},
	}
	for _, c := range cases {
		assert.Equal(t, c.result, compare(c.actual, c.op, c.expected), "%v %s %v", c.actual, c.op, c.expected)
	}
}

func TestEvaluateFieldCondition(t *testing.T) {
	payload := types.Data{
		"lead": map[string]any{
			"source": "whatsapp",
			"score":  80,
			"tags":   []any{"vip"},
		},
	}
	cases := []struct {
		cond   types.ConditionData
		result bool
	}{
		{types.ConditionData{Field: "lead.source", Operator: types.OpEquals, Value: "whatsapp"}, true},
		{types.ConditionData{Field: "data.lead.source", Operator: types.OpEquals, Value: "whatsapp"}, true},
		{types.ConditionData{Field: "lead.score", Operator: types.OpGreaterThan, Value: 50}, true},
		{types.ConditionData{Field: "lead.tags.0", Operator: types.OpEquals, Value: "vip"}, true},
		{types.ConditionData{Field: "lead.missing", Operator: types.OpNotEquals, Value: "x"}, false},
		{types.ConditionData{Field: "", Operator: types.OpEquals, Value: ""}, false},
		{types.ConditionData{Field: "lead.source", Operator: "UNKNOWN", Value: "whatsapp"}, false},
	}
	for _, c := range cases {
		c := c
		assert.Equal(t, c.result, evaluateFieldCondition(payload, &c.cond, "cond"), "%+v", c.cond)
	}
}

func TestHTTPCondition(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/crm/Ana":
			assert.Equal(t, http.MethodGet, r.Method)
			w.Write([]byte(`{"lead":{"score":90,"owner":null,"segments":["smb","latam"]}}`))
		case "/text":
			w.Write([]byte("plain text"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	f, _ := newTestEngine(t)
	cases := []struct {
		path   string
		cond   types.ConditionData
		result bool
	}{
		{"/crm/{{lead.name}}", types.ConditionData{Field: "body.lead.score", Operator: types.OpGreaterThan, Value: 50}, true},
		{"/crm/{{lead.name}}", types.ConditionData{Field: "lead.score", Operator: types.OpLessThan, Value: 50}, false},
		{"/crm/{{lead.name}}", types.ConditionData{Field: "lead.segments.1", Operator: types.OpEquals, Value: "latam"}, true},
		{"/crm/{{lead.name}}", types.ConditionData{Field: "lead.owner", Operator: types.OpNotEquals, Value: "x"}, false},
		{"/crm/{{lead.name}}", types.ConditionData{Field: "status", Operator: types.OpEquals, Value: 200}, true},
		{"/unknown", types.ConditionData{Field: "statusCode", Operator: types.OpEquals, Value: "404"}, true},
		{"/text", types.ConditionData{Field: "body", Operator: types.OpContains, Value: "plain"}, false},
		{"/text", types.ConditionData{Field: "", Operator: types.OpEquals, Value: ""}, false},
	}
	for _, c := range cases {
		cond := c.cond
		cond.Kind = types.ConditionHTTPRequest
		cond.Request = &types.HTTPRequestConfig{URL: server.URL + c.path}

		fl := chainFlow("http-condition", "lead.converted", types.NewConditionNode("check", &cond))
		fl.Nodes = append(fl.Nodes, logNode("yes"), logNode("no"))
		fl.Edges = append(fl.Edges,
			types.Edge{ID: "y", Source: "check", Target: "yes", SourceHandle: types.HandleYes},
			types.Edge{ID: "n", Source: "check", Target: "no", SourceHandle: types.HandleNo},
		)

		result := f.ExecuteFlow(context.Background(), fl, leadEvent("whatsapp"), nil)
		require.True(t, result.Success, "%+v: %v", c, result.Errors)
		expected := "no"
		if c.result {
			expected = "yes"
		}
		assert.Equal(t, []string{"trigger", "check", expected}, result.ExecutedNodes, "%s %+v", c.path, c.cond)
	}
}

func TestHTTPConditionFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	f, _ := newTestEngine(t)
	for _, cond := range []*types.ConditionData{
		{Kind: types.ConditionHTTPRequest, Field: "status", Operator: types.OpEquals, Value: 200,
			Request: &types.HTTPRequestConfig{URL: url}},
		{Kind: types.ConditionHTTPRequest, Field: "status", Operator: types.OpEquals, Value: 200},
	} {
		fl := chainFlow("http-condition", "lead.converted", types.NewConditionNode("check", cond))
		fl.Nodes = append(fl.Nodes, logNode("no"))
		fl.Edges = append(fl.Edges, types.Edge{ID: "n", Source: "check", Target: "no", SourceHandle: types.HandleNo})

		result := f.ExecuteFlow(context.Background(), fl, leadEvent("whatsapp"), nil)
		assert.False(t, result.Success)
		assert.Equal(t, []string{"trigger", "check"}, result.ExecutedNodes)
		assert.Len(t, result.Errors, 1)
	}
}
