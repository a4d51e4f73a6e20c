package definition

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/digiurban/lifecycle/model"
)

func TestLoader_LoadFile(t *testing.T) {
	l := NewLoader()
	defs, err := l.LoadFile("testdata/workflows/agricultura.yaml")
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if len(defs) != 2 {
		t.Fatalf("LoadFile() returned %d workflows, want 2", len(defs))
	}

	def := defs[1]
	if def.ModuleType != "INSPECAO_SANITARIA" {
		t.Errorf("ModuleType = %q, want INSPECAO_SANITARIA", def.ModuleType)
	}
	if def.DefaultSLA != 20 {
		t.Errorf("DefaultSLA = %d, want 20", def.DefaultSLA)
	}
	if len(def.Stages) != 2 {
		t.Fatalf("Stages = %d, want 2", len(def.Stages))
	}
	if got := def.Stages[0].RequiredDocuments; len(got) != 2 || got[0] != "ALVARA" {
		t.Errorf("RequiredDocuments = %v, want [ALVARA LAUDO_TECNICO]", got)
	}
	if !def.Stages[1].CanSkip {
		t.Error("Stages[1].CanSkip = false, want true")
	}
	conds := def.Stages[1].CompletionConditions
	if len(conds) != 2 {
		t.Fatalf("CompletionConditions = %d, want 2", len(conds))
	}
	if conds[0].Kind != model.ConditionFieldPresent || conds[0].Field != "endereco_estabelecimento" {
		t.Errorf("CompletionConditions[0] = %+v", conds[0])
	}
	if def.Checksum == "" {
		t.Error("Checksum should not be empty")
	}
	if def.Checksum != defs[0].Checksum {
		t.Error("workflows from the same file should share its checksum")
	}
	if def.SourceFile != "testdata/workflows/agricultura.yaml" {
		t.Errorf("SourceFile = %q", def.SourceFile)
	}
}

func TestLoader_LoadFile_not_found(t *testing.T) {
	l := NewLoader()
	_, err := l.LoadFile("testdata/nonexistent.yaml")
	if err == nil {
		t.Fatal("LoadFile() with missing file should return error")
	}
}

func TestLoader_LoadFile_invalid_yaml(t *testing.T) {
	l := NewLoader()
	_, err := l.LoadFile("testdata/invalid/bad.yaml")
	if err == nil {
		t.Fatal("LoadFile() with invalid YAML should return error")
	}
}

func TestLoader_LoadAll(t *testing.T) {
	l := NewLoader()
	defs, err := l.LoadAll([]string{"testdata/workflows"})
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	if len(defs) != 2 {
		t.Fatalf("LoadAll() returned %d definitions, want 2", len(defs))
	}
}

func TestLoader_LoadAll_invalid_dir(t *testing.T) {
	l := NewLoader()
	_, err := l.LoadAll([]string{"testdata/nonexistent"})
	if err == nil {
		t.Fatal("LoadAll() with missing directory should return error")
	}
}

func TestLoader_LoadAll_invalid_yaml(t *testing.T) {
	l := NewLoader()
	_, err := l.LoadAll([]string{"testdata/invalid"})
	if err == nil {
		t.Fatal("LoadAll() with invalid YAML should return error")
	}
}

func TestLoader_loaded_definitions_validate(t *testing.T) {
	defs, err := NewLoader().LoadAll([]string{"testdata/workflows"})
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	if errs := NewValidator().Validate(defs); len(errs) > 0 {
		t.Errorf("Validate() = %v, want no errors", errs)
	}
}

func TestLoad_seedsDefaultsBeforeFiles(t *testing.T) {
	defs, err := Load([]string{"testdata/workflows"}, true)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(defs) != 4 {
		t.Fatalf("Load() returned %d definitions, want 4", len(defs))
	}

	reg := NewRegistry(defs)
	if reg.Len() != 3 {
		t.Errorf("registry Len() = %d, want 3", reg.Len())
	}
	def, ok := reg.GetWorkflow(ModuleAtendimentosAgricultura)
	if !ok {
		t.Fatal("ATENDIMENTOS_AGRICULTURA missing")
	}
	if def.SourceFile != "testdata/workflows/agricultura.yaml" {
		t.Errorf("file definition should replace the built-in one, SourceFile = %q", def.SourceFile)
	}
}

func TestLoad_withoutDefaults(t *testing.T) {
	defs, err := Load(nil, false)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(defs) != 0 {
		t.Errorf("Load() = %d definitions, want 0", len(defs))
	}
}

func TestLoad_rejectsInvalidDefinitions(t *testing.T) {
	dir := t.TempDir()
	body := "workflows:\n  - module_type: ALVARA\n    name: Alvará\n    default_sla: 5\n"
	if err := os.WriteFile(filepath.Join(dir, "alvara.yaml"), []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := Load([]string{dir}, true)
	if err == nil {
		t.Fatal("Load() with a stageless workflow should return error")
	}
	if !strings.Contains(err.Error(), "invalid definitions") {
		t.Errorf("error = %v", err)
	}
}
