package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/drover-labs/drover/internal/util"
	droverrors "github.com/drover-labs/drover/pkg/drover/v1/errors"
	"github.com/drover-labs/drover/pkg/drover/v1/lookup"
	"github.com/drover-labs/drover/pkg/drover/v1/template"
	"gopkg.in/yaml.v3"
)

// Loader expands a playbook file into a flat ordered play list, recursively
// resolving include directives. It is a pure function of (path, inherited
// vars); all path resolution is anchored at the including file's directory.
type Loader struct {
	renderer template.Renderer
	lookups  lookup.Registry
}

// NewLoader creates a Loader using the given renderer for include-argument
// expansion and the given registry for with_<plugin> loops.
func NewLoader(renderer template.Renderer, lookups lookup.Registry) *Loader {
	return &Loader{renderer: renderer, lookups: lookups}
}

// LoadFile reads and expands the playbook at path. Inherited variables are
// merged into every returned play's vars block, with inherited values winning
// on conflict so include-time assignments stay authoritative.
func (l *Loader) LoadFile(path string, inheritedVars map[string]interface{}) ([]*PlayDoc, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, droverrors.NewConfigError(fmt.Sprintf("failed to get absolute path for '%s'", path), err)
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, droverrors.NewConfigError(fmt.Sprintf("failed to read playbook file '%s'", absPath), err)
	}

	var root interface{}
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, droverrors.NewConfigError(fmt.Sprintf("failed to parse playbook YAML '%s'", absPath), err)
	}
	entries, ok := root.([]interface{})
	if !ok {
		return nil, droverrors.NewConfigError(
			fmt.Sprintf("playbook '%s' must be a YAML sequence of plays", absPath), nil)
	}

	basedir := filepath.Dir(absPath)
	var docs []*PlayDoc
	for i, rawEntry := range entries {
		entry, ok := rawEntry.(map[string]interface{})
		if !ok {
			return nil, droverrors.NewConfigError(
				fmt.Sprintf("playbook '%s' entry %d is not a mapping", absPath, i+1), nil)
		}

		if _, isInclude := entry["include"]; isInclude {
			included, err := l.resolveInclude(basedir, absPath, entry, inheritedVars)
			if err != nil {
				return nil, err
			}
			docs = append(docs, included...)
			continue
		}

		play, err := l.decodePlay(entry, absPath)
		if err != nil {
			return nil, err
		}
		play.Vars = util.MergeMaps(play.Vars, inheritedVars)
		finalizeTags(play)
		docs = append(docs, &PlayDoc{Play: play, BaseDir: basedir})
	}
	return docs, nil
}

// resolveInclude expands one include directive, possibly looping it over a
// lookup plugin's item sequence. The directive value is shell-tokenized: the
// first token is the target path, the rest are key=value assignments whose
// values are template-expanded before entering the included scope.
func (l *Loader) resolveInclude(basedir, source string, entry map[string]interface{}, inherited map[string]interface{}) ([]*PlayDoc, error) {
	directive, ok := entry["include"].(string)
	if !ok {
		return nil, droverrors.NewConfigError(
			fmt.Sprintf("playbook '%s': include value must be a string", source), nil)
	}

	scopeVars := util.MergeMaps(inherited, normalizeEntryVars(entry["vars"]))

	pluginName := ""
	var terms interface{}
	for key := range entry {
		switch {
		case key == "include" || key == "vars":
		case strings.HasPrefix(key, "with_"):
			if pluginName != "" {
				return nil, droverrors.NewConfigError(
					fmt.Sprintf("playbook '%s': include has multiple with_ directives", source), nil)
			}
			pluginName = strings.TrimPrefix(key, "with_")
			terms = entry[key]
		default:
			return nil, droverrors.NewConfigError(
				fmt.Sprintf("playbook '%s': directive %q is not allowed alongside include", source, key), nil)
		}
	}

	tokens, err := shellSplit(directive)
	if err != nil || len(tokens) == 0 {
		return nil, droverrors.NewConfigError(
			fmt.Sprintf("playbook '%s': malformed include directive %q", source, directive), err)
	}

	// A bare include still runs one pass, with item bound to the empty
	// string so templates referencing it stay resolvable.
	items := []interface{}{""}
	if pluginName != "" {
		plugin, getErr := l.lookups.Get(pluginName)
		if getErr != nil {
			return nil, getErr
		}
		if termStr, isStr := terms.(string); isStr {
			resolved, resErr := l.renderer.Resolve(basedir, termStr, scopeVars)
			if resErr != nil {
				return nil, droverrors.NewConfigError(
					fmt.Sprintf("playbook '%s': failed to expand with_%s terms", source, pluginName), resErr)
			}
			terms = resolved
		}
		items, err = plugin.Run(basedir, terms, scopeVars)
		if err != nil {
			return nil, droverrors.NewConfigError(
				fmt.Sprintf("playbook '%s': with_%s lookup failed", source, pluginName), err)
		}
	}

	target := pathDwim(basedir, tokens[0])
	var docs []*PlayDoc
	for _, item := range items {
		iterVars := util.MergeMaps(scopeVars, map[string]interface{}{"item": item})
		for _, token := range tokens[1:] {
			key, value, found := strings.Cut(token, "=")
			if !found || key == "" {
				return nil, droverrors.NewConfigError(
					fmt.Sprintf("playbook '%s': include argument %q is not key=value", source, token), nil)
			}
			rendered, renderErr := l.renderer.Render(basedir, value, iterVars)
			if renderErr != nil {
				return nil, droverrors.NewConfigError(
					fmt.Sprintf("playbook '%s': failed to expand include argument %q", source, token), renderErr)
			}
			iterVars[key] = rendered
		}
		included, loadErr := l.LoadFile(target, iterVars)
		if loadErr != nil {
			return nil, loadErr
		}
		docs = append(docs, included...)
	}
	return docs, nil
}

// decodePlay validates a raw play entry against the embedded schema, then
// strict-decodes it so unknown fields surface as errors.
func (l *Loader) decodePlay(entry map[string]interface{}, source string) (*Play, error) {
	if err := ValidatePlay(entry); err != nil {
		return nil, droverrors.NewConfigError(fmt.Sprintf("playbook '%s' failed validation", source), err)
	}

	data, err := yaml.Marshal(entry)
	if err != nil {
		return nil, droverrors.NewConfigError(fmt.Sprintf("playbook '%s': failed to re-encode play entry", source), err)
	}
	var play Play
	decoder := yaml.NewDecoder(strings.NewReader(string(data)))
	decoder.KnownFields(true)
	if err := decoder.Decode(&play); err != nil {
		return nil, droverrors.NewConfigError(fmt.Sprintf("failed to parse play in '%s'", source), err)
	}

	if errs := ValidatePlayStructure(&play); len(errs) > 0 {
		messages := make([]string, 0, len(errs))
		for _, vErr := range errs {
			messages = append(messages, vErr.Error())
		}
		combined := fmt.Sprintf("playbook '%s' has %d validation error(s):\n- %s",
			source, len(messages), strings.Join(messages, "\n- "))
		return nil, droverrors.NewValidationError(combined, errs[0])
	}
	return &play, nil
}

// finalizeTags gives every task and handler the implicit universal tag plus
// the play-level tags, deduplicated while preserving declaration order.
func finalizeTags(play *Play) {
	for i := range play.Tasks {
		play.Tasks[i].Tags = unionTags(play.Tasks[i].Tags, play.Tags)
	}
	for i := range play.Handlers {
		play.Handlers[i].Tags = unionTags(play.Handlers[i].Tags, play.Tags)
	}
}

func unionTags(taskTags, playTags StringList) StringList {
	out := make(StringList, 0, len(taskTags)+len(playTags)+1)
	seen := make(map[string]struct{})
	add := func(tag string) {
		if _, dup := seen[tag]; dup {
			return
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	for _, tag := range taskTags {
		add(tag)
	}
	for _, tag := range playTags {
		add(tag)
	}
	add("all")
	return out
}

// normalizeEntryVars applies the same scalar-or-list normalization VarsMap
// performs during decoding, for raw include entries.
func normalizeEntryVars(raw interface{}) map[string]interface{} {
	switch v := raw.(type) {
	case map[string]interface{}:
		return v
	case []interface{}:
		merged := make(map[string]interface{})
		for _, elem := range v {
			if m, ok := elem.(map[string]interface{}); ok {
				for key, val := range m {
					merged[key] = val
				}
			}
		}
		return merged
	default:
		return nil
	}
}

// pathDwim resolves a possibly-relative path against the including file's
// directory.
func pathDwim(basedir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(basedir, path)
}
