package codegen

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	jsoniter "github.com/json-iterator/go"
	apperrors "github.com/leeforge/interception/errors"
	"github.com/leeforge/interception/intercept"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// EncodeManifest renders m as indented JSON.
func EncodeManifest(m *intercept.TypeManifest) ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, apperrors.WrapWithType(err, apperrors.ErrorTypeGeneration, "failed to encode manifest "+m.Type)
	}
	return append(data, '\n'), nil
}

// DecodeManifest parses a manifest written by EncodeManifest.
func DecodeManifest(data []byte) (*intercept.TypeManifest, error) {
	var m intercept.TypeManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, apperrors.WrapWithType(err, apperrors.ErrorTypeConfiguration, "failed to decode manifest")
	}
	if m.Type == "" {
		return nil, apperrors.NewRequired("manifest type")
	}
	return &m, nil
}

// LoadManifests reads every *.manifest.json file in dir, sorted by file name.
func LoadManifests(dir string) ([]*intercept.TypeManifest, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.manifest.json"))
	if err != nil {
		return nil, apperrors.WrapWithType(err, apperrors.ErrorTypeConfiguration, "failed to list manifests in "+dir)
	}
	sort.Strings(paths)

	manifests := make([]*intercept.TypeManifest, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, apperrors.WrapWithType(err, apperrors.ErrorTypeConfiguration, "failed to read "+p)
		}
		m, err := DecodeManifest(data)
		if err != nil {
			return nil, apperrors.FromError(err).WithDetail("path", p)
		}
		manifests = append(manifests, m)
	}
	return manifests, nil
}

// Write stores def.Source in dir and, when manifestDir is set, its manifest
// in manifestDir. It returns the written paths.
func Write(def *Definition, dir, manifestDir string) ([]string, error) {
	target := filepath.Join(dir, def.FileName)
	if err := writeFile(target, def.Source); err != nil {
		return nil, err
	}
	written := []string{target}

	if strings.TrimSpace(manifestDir) == "" {
		return written, nil
	}
	data, err := EncodeManifest(def.Manifest)
	if err != nil {
		return nil, err
	}
	manifestPath := filepath.Join(manifestDir, ManifestFileName(def.SubjectType))
	if err := writeFile(manifestPath, data); err != nil {
		return nil, err
	}
	return append(written, manifestPath), nil
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apperrors.WrapWithType(err, apperrors.ErrorTypeGeneration, "failed to create "+filepath.Dir(path))
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return apperrors.WrapWithType(err, apperrors.ErrorTypeGeneration, "failed to write "+path)
	}
	return nil
}
