// Package lookup defines the capability registry for lookup plugins, the
// item-producing collaborators behind with_<plugin> include loops.
package lookup

// Plugin expands templated terms into a sequence of items. The basedir is
// the directory of the playbook file the with_ directive appeared in, for
// plugins that resolve relative paths.
type Plugin interface {
	Run(basedir string, terms interface{}, vars map[string]interface{}) ([]interface{}, error)
}

// Registry maps plugin names to implementations. Get returns a
// *errors.PluginNotFoundError when the name is not registered.
type Registry interface {
	Get(name string) (Plugin, error)
	Register(name string, plugin Plugin) error
	List() []string
}
