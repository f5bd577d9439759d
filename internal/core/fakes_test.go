package core_test

type fakeSniffer struct {
	contentType string
	err         error
	calls       int
	paths       []string
	names       []string
}

func (f *fakeSniffer) Sniff(path, name string) (string, error) {
	f.calls++
	f.paths = append(f.paths, path)
	f.names = append(f.names, name)
	return f.contentType, f.err
}

type fakeClassifier struct {
	contentType string
	err         error
	calls       int
}

func (f *fakeClassifier) Classify(string) (string, error) {
	f.calls++
	return f.contentType, f.err
}

type fakeDetector struct {
	contentType string
	calls       int
	paths       []string
}

func (f *fakeDetector) Detect(path string) string {
	f.calls++
	f.paths = append(f.paths, path)
	return f.contentType
}

type fakeMappings map[string][]string

func (m fakeMappings) Lookup(ext string) ([]string, bool) {
	types, ok := m[ext]
	return types, ok
}

type fakeFile struct {
	name string
}

func (f fakeFile) Name() string {
	return f.name
}
