package table

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/steelcutops/cmdsql/cmdsql/catalog"
	"github.com/steelcutops/cmdsql/cmdsql/columnar"
	"github.com/steelcutops/cmdsql/cmdsql/commandmanager"
	"github.com/steelcutops/cmdsql/cmdsql/hostgroup"
	"github.com/steelcutops/cmdsql/cmdsql/outputparser"
	"github.com/steelcutops/cmdsql/cmdsql/tracer"
	"github.com/steelcutops/cmdsql/common"
)

type MockCommandManager struct {
	mock.Mock
}

func (m *MockCommandManager) RunLocal(ctx context.Context, config commandmanager.CommandConfig) (commandmanager.CommandResult, error) {
	args := m.Called(ctx, config)
	return args.Get(0).(commandmanager.CommandResult), args.Error(1)
}

func (m *MockCommandManager) RunRemote(ctx context.Context, config commandmanager.CommandConfig) (commandmanager.CommandResult, error) {
	args := m.Called(ctx, config)
	return args.Get(0).(commandmanager.CommandResult), args.Error(1)
}

func (m *MockCommandManager) Run(ctx context.Context, config commandmanager.CommandConfig) (commandmanager.CommandResult, error) {
	args := m.Called(ctx, config)
	return args.Get(0).(commandmanager.CommandResult), args.Error(1)
}

func stubParser(t *testing.T, out string) (*outputparser.Bridge, string) {
	t.Helper()
	dir := t.TempDir()
	stdin := filepath.Join(dir, "stdin")
	script := "#!/bin/sh\ncat > '" + stdin + "'\nprintf '%s' '" + out + "'\n"
	path := filepath.Join(dir, "parser")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return outputparser.New(path), stdin
}

func mockScanner(outputs map[string]string, failures map[string]error) (*Scanner, map[string]*MockCommandManager) {
	mocks := map[string]*MockCommandManager{}
	for host, out := range outputs {
		m := &MockCommandManager{}
		m.On("Run", mock.Anything, mock.Anything).Return(commandmanager.CommandResult{STDOUT: out}, nil)
		mocks[host] = m
	}
	for host, err := range failures {
		m := &MockCommandManager{}
		m.On("Run", mock.Anything, mock.Anything).Return(commandmanager.CommandResult{}, err)
		mocks[host] = m
	}
	s := &Scanner{
		NewManager: func(host string) commandmanager.CommandManager { return mocks[host] },
	}
	return s, mocks
}

func TestScanLocalEndToEnd(t *testing.T) {
	parser, stdin := stubParser(t, `[{"a":1,"b":"x","c":null}, {"a":2,"b":"y","c":true}]`)
	s := &Scanner{Parser: parser}

	h, err := Bind(testSpec(), []Expr{Literal{"one"}, Literal{"two"}}, BindOptions{})
	require.NoError(t, err)

	batches, err := s.Scan(context.Background(), h, nil, 0)
	require.NoError(t, err)
	require.Len(t, batches, 1)

	b := batches[0]
	require.Equal(t, 2, b.NumRows())
	assert.Equal(t, []interface{}{int64(1), "x", nil}, b.Row(0))
	assert.Equal(t, []interface{}{int64(2), "y", true}, b.Row(1))

	in, err := os.ReadFile(stdin)
	require.NoError(t, err)
	assert.Equal(t, "one two\n", string(in))
}

func TestScanProjection(t *testing.T) {
	parser, _ := stubParser(t, `[{"a":1,"b":"x","c":false}]`)
	s := &Scanner{Parser: parser}
	h, err := Bind(testSpec(), nil, BindOptions{})
	require.NoError(t, err)

	batches, err := s.Scan(context.Background(), h, []int{2, 0}, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, batches[0].Schema().Names())
	assert.Equal(t, []interface{}{false, int64(1)}, batches[0].Row(0))

	_, err = s.Scan(context.Background(), h, []int{7}, 0)
	assert.Error(t, err)
}

func TestScanEmptyOutput(t *testing.T) {
	parser, _ := stubParser(t, ``)
	s := &Scanner{Parser: parser}
	h, err := Bind(testSpec(), nil, BindOptions{})
	require.NoError(t, err)

	batches, err := s.Scan(context.Background(), h, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, columnar.TotalRows(batches))
}

func TestScanSchemaMismatch(t *testing.T) {
	parser, _ := stubParser(t, `[{"a":null,"b":"x"}]`)
	s := &Scanner{Parser: parser}
	h, err := Bind(testSpec(), nil, BindOptions{})
	require.NoError(t, err)

	_, err = s.Scan(context.Background(), h, nil, 0)
	require.Error(t, err)
	var scanErr *common.ScanError
	require.True(t, errors.As(err, &scanErr))
	assert.Equal(t, common.SchemaMismatch, scanErr.Kind)
	assert.Equal(t, "t", scanErr.Table)
}

func TestScanParseFailure(t *testing.T) {
	parser, _ := stubParser(t, `[{"a":1,`)
	s := &Scanner{Parser: parser}
	h, err := Bind(testSpec(), nil, BindOptions{})
	require.NoError(t, err)

	_, err = s.Scan(context.Background(), h, nil, 0)
	assert.True(t, common.IsKind(err, common.ParseFailure), "got %v", err)
}

func TestScanRemoteUsesHost(t *testing.T) {
	s, mocks := mockScanner(map[string]string{"db1": `[{"a":5,"b":"z"}]`}, nil)
	h, err := Bind(testSpec(), []Expr{Call{Name: "host", Args: []Expr{Literal{"db1"}}}, Literal{"-x"}}, BindOptions{})
	require.NoError(t, err)

	batches, err := s.Scan(context.Background(), h, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{int64(5), "z", nil}, batches[0].Row(0))

	mocks["db1"].AssertCalled(t, "Run", mock.Anything, commandmanager.CommandConfig{
		Command: "echo",
		Args:    []string{"-x"},
		Parser:  "test",
	})
}

func TestScanRemoteFailureCarriesHost(t *testing.T) {
	s, _ := mockScanner(nil, map[string]error{"db1": common.Errorf(common.RemoteConnectFailure, "refused")})
	h, err := Bind(testSpec(), []Expr{Call{Name: "host", Args: []Expr{Literal{"db1"}}}}, BindOptions{})
	require.NoError(t, err)

	_, err = s.Scan(context.Background(), h, nil, 0)
	var scanErr *common.ScanError
	require.True(t, errors.As(err, &scanErr))
	assert.Equal(t, common.RemoteConnectFailure, scanErr.Kind)
	assert.Equal(t, "db1", scanErr.Host)
	assert.Equal(t, "t", scanErr.Table)
}

func TestScanGroup(t *testing.T) {
	s, _ := mockScanner(map[string]string{
		"web2": `[{"a":3,"b":"w2"}]`,
		"web1": `[{"a":1,"b":"w1a"},{"a":2,"b":"w1b"}]`,
	}, nil)
	s.Inventory = hostgroup.NewInventory(map[string][]string{"web": {"web2", "web1"}})

	h, err := Bind(testSpec(), []Expr{Call{Name: "hostgroup", Args: []Expr{Literal{"web"}}}}, BindOptions{})
	require.NoError(t, err)

	batches, err := s.Scan(context.Background(), h, nil, 0)
	require.NoError(t, err)

	var rows [][]interface{}
	for _, b := range batches {
		assert.Equal(t, []string{"host", "a", "b", "c"}, b.Schema().Names())
		for i := 0; i < b.NumRows(); i++ {
			rows = append(rows, b.Row(i))
		}
	}
	assert.Equal(t, [][]interface{}{
		{"web1", int64(1), "w1a", nil},
		{"web1", int64(2), "w1b", nil},
		{"web2", int64(3), "w2", nil},
	}, rows)
}

func TestScanGroupDialLimiter(t *testing.T) {
	s, _ := mockScanner(map[string]string{
		"web1": `[{"a":1,"b":"x"}]`,
		"web2": `[{"a":2,"b":"y"}]`,
		"web3": `[{"a":3,"b":"z"}]`,
	}, nil)
	s.Inventory = hostgroup.NewInventory(map[string][]string{"web": {"web1", "web2", "web3"}})
	s.DialLimiter = rate.NewLimiter(rate.Every(20*time.Millisecond), 1)

	h, err := Bind(testSpec(), []Expr{Call{Name: "hostgroup", Args: []Expr{Literal{"web"}}}}, BindOptions{})
	require.NoError(t, err)

	start := time.Now()
	batches, err := s.Scan(context.Background(), h, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, columnar.TotalRows(batches))
	assert.GreaterOrEqual(t, time.Since(start), 35*time.Millisecond)
}

func TestScanRecordsSpan(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := tracer.Setup(tracer.ExporterStdout, &buf)
	require.NoError(t, err)
	defer tracer.Setup(tracer.ExporterNone, nil)

	s, _ := mockScanner(map[string]string{"": `[{"a":1,"b":"x"}]`}, nil)
	h, err := Bind(testSpec(), nil, BindOptions{})
	require.NoError(t, err)

	_, err = s.Scan(context.Background(), h, nil, 0)
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))

	out := buf.String()
	assert.Contains(t, out, "table.scan")
	assert.Contains(t, out, "table.rows")
}

func TestScanGroupFailure(t *testing.T) {
	s, _ := mockScanner(
		map[string]string{"web1": `[{"a":1,"b":"ok"}]`},
		map[string]error{"web2": common.Errorf(common.RemoteAuthFailure, "denied")},
	)
	s.Inventory = hostgroup.NewInventory(map[string][]string{"web": {"web1", "web2"}})

	h, err := Bind(testSpec(), []Expr{Call{Name: "hostgroup", Args: []Expr{Literal{"web"}}}}, BindOptions{})
	require.NoError(t, err)

	_, err = s.Scan(context.Background(), h, nil, 0)
	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.RemoteAuthFailure))
	assert.Contains(t, err.Error(), "web2")
}

func TestScanGroupEmptyAndUnknown(t *testing.T) {
	s, _ := mockScanner(map[string]string{"web1": `[]`}, nil)
	s.Inventory = hostgroup.NewInventory(map[string][]string{"web": {"web1"}})

	h, err := Bind(testSpec(), []Expr{Call{Name: "hostgroup", Args: []Expr{Literal{"web"}}}}, BindOptions{})
	require.NoError(t, err)
	batches, err := s.Scan(context.Background(), h, nil, 0)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, 0, batches[0].NumRows())
	assert.Equal(t, 4, batches[0].NumCols())

	h.Group = "db"
	_, err = s.Scan(context.Background(), h, nil, 0)
	assert.Error(t, err)
}

func TestScanSingleShape(t *testing.T) {
	spec := testSpec()
	spec.Shape = catalog.Single
	s, _ := mockScanner(map[string]string{"box": `{"a":9,"b":"one"}`}, nil)

	h, err := Bind(spec, []Expr{Call{Name: "host", Args: []Expr{Literal{"box"}}}}, BindOptions{})
	require.NoError(t, err)
	batches, err := s.Scan(context.Background(), h, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, columnar.TotalRows(batches))
}
