package composer

import (
	"context"
	"path/filepath"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/openfroyo/dynflow/pkg/dataflow"
	"github.com/openfroyo/dynflow/pkg/telemetry"
	"github.com/openfroyo/dynflow/pkg/template"
)

// session is the state of one composition. It owns the accumulator and is
// discarded afterwards.
type session struct {
	c          *Composer
	logger     zerolog.Logger
	deployment string
	baseDir    string

	out     *dataflow.Dataflow
	sources []string

	// loaded caches referenced dataflows by resolved path. Cached values are
	// only read, never modified.
	loaded map[string]*dataflow.Dataflow
}

func (c *Composer) newSession(path string) *session {
	deployment := c.resolver.ForIO(path, c.resolver.Root)
	return &session{
		c:          c,
		logger:     c.logger,
		deployment: deployment,
		baseDir:    filepath.Dir(deployment),
		out:        &dataflow.Dataflow{},
		loaded:     make(map[string]*dataflow.Dataflow),
	}
}

func (s *session) run(ctx context.Context) error {
	s.sources = append(s.sources, s.deployment)

	declared := template.DeclaredVars(s.deployment)
	text, err := s.render(ctx, "deployment", s.deployment, declared, s.c.extraVars)
	if err != nil {
		return err
	}

	cfg, err := dataflow.ParseDeployment([]byte(text), s.deployment)
	if err != nil {
		return err
	}

	for _, entry := range cfg.Nodes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.addEntry(ctx, entry); err != nil {
			return err
		}
	}

	for _, comp := range cfg.Components {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.addComponent(ctx, comp, cfg.Vars); err != nil {
			return err
		}
	}

	return nil
}

func (s *session) fieldValue(baseDir string) func(string) string {
	return func(p string) string { return s.c.resolver.FieldValue(p, baseDir) }
}

func (s *session) addEntry(ctx context.Context, entry dataflow.DeploymentEntry) error {
	switch {
	case entry.Node != nil:
		s.out.Append(dataflow.NodeEntry(dataflow.MapNodePaths(entry.Node, s.fieldValue(s.baseDir))))
		s.c.metrics.RecordNodes(telemetry.SourceDirect, 1)
	case entry.Operator != nil:
		s.out.Append(dataflow.OperatorEntry(dataflow.MapOperatorPaths(entry.Operator, s.fieldValue(s.baseDir))))
		s.c.metrics.RecordNodes(telemetry.SourceDirect, 1)
	case entry.Dynamic != nil:
		return s.addDynamic(ctx, entry.Dynamic)
	}
	return nil
}

// addDynamic appends a copy of the first node of the referenced dataflow whose
// id matches, or nothing when no node matches.
func (s *session) addDynamic(ctx context.Context, ref *dataflow.DynamicNode) error {
	path := s.c.resolver.ForIO(ref.Path, s.baseDir)

	df, err := s.load(ctx, path)
	if err != nil {
		return err
	}

	node, ok := df.FindNode(ref.ID)
	if !ok {
		s.logger.Warn().
			Str("id", ref.ID).
			Str("path", path).
			Msg("Dynamic node not found, skipping")
		s.c.metrics.RecordUnresolvedDynamicNode()
		return nil
	}

	s.out.Append(dataflow.NodeEntry(node.Clone()))
	s.c.metrics.RecordNodes(telemetry.SourceDynamic, 1)
	return nil
}

func (s *session) load(ctx context.Context, path string) (*dataflow.Dataflow, error) {
	if df, ok := s.loaded[path]; ok {
		return df, nil
	}

	_, span := s.c.tracer.Start(ctx, telemetry.SpanLoad, trace.WithAttributes(telemetry.AttrPath.String(path)))
	s.sources = append(s.sources, path)
	df, err := s.c.loader.Load(path)
	telemetry.End(span, err)
	if err != nil {
		return nil, err
	}

	s.logger.Debug().Str("path", path).Int("nodes", len(df.Nodes)).Msg("Loaded dataflow")
	s.loaded[path] = df
	return df, nil
}

// addComponent renders a component template with the deployment vars, the
// extra vars and the component's own vars, in increasing precedence, and
// appends every entry of the result.
func (s *session) addComponent(ctx context.Context, comp dataflow.DynamicComponent, deploymentVars map[string]interface{}) (err error) {
	ctx, span := s.c.tracer.Start(ctx, telemetry.SpanComponent, trace.WithAttributes(
		telemetry.AttrComponentID.String(comp.ID),
	))
	defer func() { telemetry.End(span, err) }()

	path := s.c.resolver.ForIO(comp.Path, s.baseDir)
	span.SetAttributes(telemetry.AttrPath.String(path))
	s.sources = append(s.sources, path)

	vars := template.Merge(deploymentVars, s.c.extraVars, comp.Vars)
	text, err := s.render(ctx, "component", path, vars, nil)
	if err != nil {
		return err
	}

	df, err := s.c.loader.ParseRendered(text, path, filepath.Dir(path))
	if err != nil {
		return err
	}

	s.out.Append(df.Nodes...)
	s.c.metrics.RecordNodes(telemetry.SourceComponent, len(df.Nodes))

	s.logger.Debug().
		Str("component_id", comp.ID).
		Str("path", path).
		Int("nodes", len(df.Nodes)).
		Msg("Component expanded")

	return nil
}

func (s *session) render(ctx context.Context, kind, path string, declared, extra map[string]interface{}) (string, error) {
	_, span := s.c.tracer.Start(ctx, telemetry.SpanRender, trace.WithAttributes(telemetry.AttrPath.String(path)))
	text, err := s.c.renderer.Render(path, declared, extra)
	telemetry.End(span, err)
	if err != nil {
		return "", err
	}
	s.c.metrics.RecordTemplateRendered(kind)
	return text, nil
}
