package complexity

import "testing"

func TestLanguageFromExtension(t *testing.T) {
	tests := []struct {
		ext  string
		want Language
		ok   bool
	}{
		{".go", LangGo, true},
		{".jsx", LangJavaScript, true},
		{".tsx", LangTSX, true},
		{".py", LangPython, true},
		{".kts", LangKotlin, true},
		{".md", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.ext, func(t *testing.T) {
			got, ok := LanguageFromExtension(tt.ext)
			if got != tt.want || ok != tt.ok {
				t.Errorf("LanguageFromExtension(%q) = (%q, %v), want (%q, %v)",
					tt.ext, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestMostComplex_Empty(t *testing.T) {
	fc := &FileComplexity{}
	if top := fc.MostComplex(); top != nil {
		t.Errorf("MostComplex = %v, want nil", top)
	}
}
