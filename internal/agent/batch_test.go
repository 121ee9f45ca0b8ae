package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"retailcopilot/internal/store"
	"retailcopilot/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func batchFactory(t *testing.T) Factory {
	t.Helper()
	return func() (*Agent, func(), error) {
		svc := &fakeService{
			results: []store.Result{
				{Columns: []string{"aov"}, Rows: []map[string]any{{"aov": 100.0}}},
				{Columns: []string{"aov"}, Rows: []map[string]any{{"aov": 100.0}}},
				{Columns: []string{"aov"}, Rows: []map[string]any{{"aov": 100.0}}},
			},
			errs: []error{nil, nil, nil},
		}
		return newTestAgent(t, &fakeRetriever{fragments: policyFragments()}, svc), func() {}, nil
	}
}

func batchInput(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, `{"id":"q%d","question":"What was the AOV during winter 1997?","format_hint":"float"}`+"\n", i)
	}
	return b.String()
}

func decodeResponses(t *testing.T, out *bytes.Buffer) []types.Response {
	t.Helper()
	var responses []types.Response
	scanner := bufio.NewScanner(out)
	for scanner.Scan() {
		var r types.Response
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &r))
		responses = append(responses, r)
	}
	require.NoError(t, scanner.Err())
	return responses
}

func TestRunBatchSequential(t *testing.T) {
	var out bytes.Buffer
	stats, err := RunBatch(context.Background(), strings.NewReader(batchInput(3)), &out, batchFactory(t), 1)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 3, stats.Answered)
	assert.Equal(t, 0, stats.Malformed)

	responses := decodeResponses(t, &out)
	require.Len(t, responses, 3)
	for i, r := range responses {
		assert.Equal(t, fmt.Sprintf("q%d", i), r.ID)
	}
}

func TestRunBatchParallelPreservesOrder(t *testing.T) {
	const n = 12
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, `{"id":"q%02d","question":"What is the return policy for unopened beverages?","format_hint":"int"}`+"\n", i)
	}

	var out bytes.Buffer
	stats, err := RunBatch(context.Background(), strings.NewReader(b.String()), &out, batchFactory(t), 4)
	require.NoError(t, err)
	assert.Equal(t, n, stats.Answered)

	responses := decodeResponses(t, &out)
	require.Len(t, responses, n)
	for i, r := range responses {
		assert.Equal(t, fmt.Sprintf("q%02d", i), r.ID)
		assert.Equal(t, float64(14), r.FinalAnswer)
	}
}

func TestRunBatchSkipsMalformedLines(t *testing.T) {
	input := strings.Join([]string{
		`{"id":"q0","question":"What was the AOV during winter 1997?","format_hint":"float"}`,
		`not json at all`,
		``,
		`{"question":"missing id","format_hint":"int"}`,
		`{"id":"q1","question":"What was the AOV during winter 1997?","format_hint":"float"}`,
	}, "\n")

	var out bytes.Buffer
	stats, err := RunBatch(context.Background(), strings.NewReader(input), &out, batchFactory(t), 1)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Answered)
	assert.Equal(t, 2, stats.Malformed)
	assert.Equal(t, 4, stats.Total)

	responses := decodeResponses(t, &out)
	require.Len(t, responses, 2)
	assert.Equal(t, "q0", responses[0].ID)
	assert.Equal(t, "q1", responses[1].ID)
}

func TestRunBatchEmptyInput(t *testing.T) {
	var out bytes.Buffer
	stats, err := RunBatch(context.Background(), strings.NewReader(""), &out, batchFactory(t), 4)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Total)
	assert.Zero(t, out.Len())
}

func TestRunBatchFactoryError(t *testing.T) {
	failing := func() (*Agent, func(), error) {
		return nil, nil, fmt.Errorf("cannot open database")
	}
	var out bytes.Buffer
	_, err := RunBatch(context.Background(), strings.NewReader(batchInput(2)), &out, failing, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot open database")
}
