package table

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/steelcutops/cmdsql/cmdsql/columnar"
	"github.com/steelcutops/cmdsql/cmdsql/commandmanager"
	"github.com/steelcutops/cmdsql/cmdsql/decoder"
	"github.com/steelcutops/cmdsql/cmdsql/hostgroup"
	"github.com/steelcutops/cmdsql/cmdsql/normalizer"
	"github.com/steelcutops/cmdsql/cmdsql/outputparser"
	"github.com/steelcutops/cmdsql/cmdsql/sshmanager"
	"github.com/steelcutops/cmdsql/cmdsql/tracer"
	"github.com/steelcutops/cmdsql/common"
	"github.com/steelcutops/cmdsql/logger"
)

// Scanner runs bound tables. It is safe for concurrent use; every scan
// starts its own processes and connections.
type Scanner struct {
	Parser      *outputparser.Bridge
	Normalizer  *normalizer.Normalizer
	Resolver    *sshmanager.Resolver
	SSHClient   commandmanager.SSHDialer
	Inventory   *hostgroup.Inventory
	BatchSize   int
	Concurrency int
	Logger      logger.Logger

	// DialLimiter paces host starts during group scans.
	DialLimiter *rate.Limiter

	// NewManager overrides how a host's command manager is built.
	NewManager func(host string) commandmanager.CommandManager
}

func (s *Scanner) log() logger.Logger {
	if s.Logger == nil {
		return logger.New()
	}
	return s.Logger
}

func (s *Scanner) manager(host string) commandmanager.CommandManager {
	if s.NewManager != nil {
		return s.NewManager(host)
	}
	dialer := s.SSHClient
	if dialer == nil {
		dialer = commandmanager.RealSSHClient{}
	}
	return &commandmanager.UnixCommandManager{
		Hostname:  host,
		SSHClient: dialer,
		Resolver:  s.Resolver,
		Parser:    s.Parser,
	}
}

// Scan executes the handle and returns its rows. projection selects
// columns of h.Schema() by position; nil keeps them all. limit is accepted
// for the engine's benefit and not enforced here.
func (s *Scanner) Scan(ctx context.Context, h *TableHandle, projection []int, limit int) (batches []*columnar.RecordBatch, err error) {
	scanID := uuid.NewString()
	log := s.log().With("scan_id", scanID, "table", h.Spec.Name)
	start := time.Now()
	log.Debug("Scan started", "host", h.Host, "group", h.Group, "argv", h.Argv(), "limit", limit)

	ctx, span := tracer.StartSpan(ctx, "table.scan",
		tracer.String("scan.id", scanID),
		tracer.String("table.name", h.Spec.Name),
		tracer.String("table.host", h.Host),
		tracer.String("table.group", h.Group),
	)
	defer func() { tracer.End(span, err) }()

	if h.Group != "" {
		batches, err = s.scanGroup(ctx, h, log)
	} else {
		batches, err = s.scanHost(ctx, h, h.Host, log)
	}
	if err != nil {
		log.Error("Scan failed", "error", err)
		return nil, err
	}

	if projection != nil {
		for i, b := range batches {
			if batches[i], err = b.Project(projection); err != nil {
				return nil, err
			}
		}
	}

	rows := columnar.TotalRows(batches)
	span.SetAttributes(tracer.Int("table.rows", rows))
	log.Info("Scan finished", "rows", rows, "batches", len(batches), "duration", time.Since(start))
	return batches, nil
}

func (s *Scanner) scanHost(ctx context.Context, h *TableHandle, host string, log logger.Logger) ([]*columnar.RecordBatch, error) {
	argv := h.Argv()
	config := commandmanager.CommandConfig{
		Command: argv[0],
		Args:    argv[1:],
		Parser:  h.Spec.ParserID,
	}

	result, err := s.manager(host).Run(ctx, config)
	if err != nil {
		return nil, common.WithTarget(err, h.Spec.Name, host)
	}
	log.Debug("Command finished", "host", host, "exit_code", result.ExitCode, "duration", result.Duration)

	norm := s.Normalizer
	if norm == nil {
		norm = normalizer.New(nil)
	}
	records, err := norm.Normalize(ctx, result.STDOUT, h.Spec.Shape)
	if err != nil {
		return nil, common.WithTarget(err, h.Spec.Name, host)
	}

	batches, err := decoder.New(h.Spec.Schema, s.BatchSize).DecodeString(records)
	if err != nil {
		return nil, common.WithTarget(err, h.Spec.Name, host)
	}
	return batches, nil
}

func (s *Scanner) scanGroup(ctx context.Context, h *TableHandle, log logger.Logger) ([]*columnar.RecordBatch, error) {
	hg, err := s.Inventory.Group(h.Group)
	if err != nil {
		return nil, err
	}
	hg.Limiter = s.DialLimiter
	schema := h.Schema()

	perHost := make([][]*columnar.RecordBatch, len(hg.List()))
	err = hg.Run(ctx, s.Concurrency, func(ctx context.Context, i int, host string) error {
		batches, err := s.scanHost(ctx, h, host, log)
		if err != nil {
			return err
		}
		for j, b := range batches {
			columns := make([]columnar.Column, 0, b.NumCols()+1)
			columns = append(columns, columnar.ConstStringColumn(host, b.NumRows()))
			for c := 0; c < b.NumCols(); c++ {
				columns = append(columns, b.Column(c))
			}
			if batches[j], err = columnar.NewRecordBatch(schema, columns); err != nil {
				return err
			}
		}
		perHost[i] = batches
		return nil
	})
	if err != nil {
		return nil, err
	}

	var batches []*columnar.RecordBatch
	for _, hb := range perHost {
		for _, b := range hb {
			if b.NumRows() > 0 {
				batches = append(batches, b)
			}
		}
	}
	if len(batches) == 0 {
		empty, err := decoder.New(schema, s.BatchSize).DecodeString("")
		if err != nil {
			return nil, err
		}
		batches = empty
	}
	return batches, nil
}
