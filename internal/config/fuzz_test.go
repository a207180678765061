package config

import "testing"

// FuzzLuaParser checks that arbitrary scripts never panic the parser.
func FuzzLuaParser(f *testing.F) {
	f.Add([]byte(testLuaConfig))
	f.Add([]byte(""))
	f.Add([]byte("taskmon.config = {"))
	f.Add([]byte("taskmon.config = { history_size = 1e309 }"))
	f.Add([]byte("taskmon.config = { update_interval = 0/0 }"))

	p, err := NewLuaConfigParser()
	if err != nil {
		f.Fatal(err)
	}
	defer p.Close()

	f.Fuzz(func(t *testing.T, data []byte) {
		cfg, err := p.Parse(data)
		if err == nil && cfg == nil {
			t.Error("Parse returned nil config with nil error")
		}
	})
}

// FuzzYAMLParser checks that arbitrary documents never panic the parser.
func FuzzYAMLParser(f *testing.F) {
	f.Add([]byte(testYAMLConfig))
	f.Add([]byte(""))
	f.Add([]byte("history_size: .inf"))
	f.Add([]byte("update_interval: -5"))
	f.Add([]byte("? [a]\n: b"))

	f.Fuzz(func(t *testing.T, data []byte) {
		cfg, err := parseYAML(data)
		if err == nil && cfg == nil {
			t.Error("parseYAML returned nil config with nil error")
		}
	})
}

// FuzzExpandEnv checks that expansion terminates on arbitrary input.
func FuzzExpandEnv(f *testing.F) {
	f.Add("${HOME}")
	f.Add("${A:-${B}}")
	f.Add("$$$")
	f.Fuzz(func(t *testing.T, s string) {
		_ = ExpandEnv(s)
	})
}
