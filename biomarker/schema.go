package biomarker

import "github.com/teranos/healthtwin/twin"

// SchemaFromRegistry returns the default twin schema with every registered
// biomarker declared as a numeric field.
func SchemaFromRegistry(r *Registry) *twin.Schema {
	return twin.DefaultSchema(r.ListAll()...)
}
