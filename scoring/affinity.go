package scoring

import "scholaverse/catalog"

// FilterByAffinity narrows weapon-type options to those the class can use,
// keeping the options' order. An empty or unknown class leaves the list
// untouched, and so does a filter that would leave nothing: a student never
// loses every weapon because of a class mismatch. applied reports whether the
// returned list is the filtered one.
func FilterByAffinity(options []string, class string, cat *catalog.Catalog) (out []string, applied bool) {
	if class == "" || cat == nil {
		return options, false
	}
	allowed, ok := cat.Affinity(class)
	if !ok {
		return options, false
	}
	set := make(map[string]struct{}, len(allowed))
	for _, w := range allowed {
		set[w] = struct{}{}
	}
	filtered := make([]string, 0, len(options))
	for _, opt := range options {
		if _, ok := set[opt]; ok {
			filtered = append(filtered, opt)
		}
	}
	if len(filtered) == 0 {
		return options, false
	}
	return filtered, true
}

func restrictLabels(labels map[string]string, options []string) map[string]string {
	out := make(map[string]string, len(options))
	for _, key := range options {
		if label, ok := labels[key]; ok {
			out[key] = label
		}
	}
	return out
}
