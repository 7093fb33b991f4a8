package codegen

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/agentmesh/orchestrator/nodedef"
)

func extensionFor(language string) string {
	if language == "javascript" {
		return ".js"
	}
	return ".py"
}

// RegistrationService writes a Generated node's definition and code to
// disk, registering the definition with Loader for immediate use. Any
// failure rolls back every file written for that node name, mirroring the
// teacher's config.Loader.Load discipline of never handing back a
// partially-decoded value.
type RegistrationService struct {
	DefinitionsDir string
	ScriptsDir     string
	Loader         *nodedef.Loader
}

// NewRegistrationService returns a service writing into definitionsDir and
// scriptsDir. loader may be nil if the caller does not need the generated
// definition loaded in-process.
func NewRegistrationService(definitionsDir, scriptsDir string, loader *nodedef.Loader) *RegistrationService {
	return &RegistrationService{DefinitionsDir: definitionsDir, ScriptsDir: scriptsDir, Loader: loader}
}

// Register writes gen's definition and code, loading the definition into
// Loader. On any failure it removes every file this call wrote before
// returning the error.
func (r *RegistrationService) Register(gen *Generated) (err error) {
	var written []string
	defer func() {
		if err != nil {
			for _, path := range written {
				_ = os.Remove(path)
			}
		}
	}()

	if err = os.MkdirAll(r.DefinitionsDir, 0o755); err != nil {
		return fmt.Errorf("codegen: creating definitions dir: %w", err)
	}
	if err = os.MkdirAll(r.ScriptsDir, 0o755); err != nil {
		return fmt.Errorf("codegen: creating scripts dir: %w", err)
	}

	defPath := filepath.Join(r.DefinitionsDir, gen.NodeName+".yaml")
	if err = os.WriteFile(defPath, gen.DefinitionYAML, 0o644); err != nil {
		return fmt.Errorf("codegen: writing definition: %w", err)
	}
	written = append(written, defPath)

	scriptPath := filepath.Join(r.ScriptsDir, gen.NodeName+extensionFor(gen.Language))
	if err = os.WriteFile(scriptPath, []byte(gen.Code), 0o644); err != nil {
		return fmt.Errorf("codegen: writing script: %w", err)
	}
	written = append(written, scriptPath)

	if r.Loader != nil {
		if _, lerr := r.Loader.LoadBytes(gen.DefinitionYAML); lerr != nil {
			err = fmt.Errorf("codegen: loading generated definition: %w", lerr)
			return err
		}
	}

	return nil
}

// Pipeline composes GapAnalyzer, Generator and RegistrationService into the
// end-to-end "user asks for new capability -> analyze -> generate ->
// register" request.
type Pipeline struct {
	Analyzer     *GapAnalyzer
	Generator    *Generator
	Registration *RegistrationService
}

// NewPipeline wires the three collaborators together.
func NewPipeline(registration *RegistrationService) *Pipeline {
	return &Pipeline{Analyzer: NewGapAnalyzer(), Generator: NewGenerator(), Registration: registration}
}

// Run executes the end-to-end request for task against the currently
// registered capabilities (node name -> description). It returns the
// GapAnalysis so callers can observe a no-gap result, and the Generated
// node when one was produced and registered.
func (p *Pipeline) Run(task string, registered map[string]string) (GapAnalysis, *Generated, error) {
	analysis := p.Analyzer.Analyze(task, registered)
	if !analysis.HasGap {
		return analysis, nil, nil
	}

	gen, err := p.Generator.Generate(analysis)
	if err != nil {
		return analysis, nil, err
	}

	if err := p.Registration.Register(gen); err != nil {
		return analysis, nil, err
	}

	return analysis, gen, nil
}
