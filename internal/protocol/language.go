package protocol

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Language names a runtime the runner knows how to compile or interpret.
type Language string

const (
	LanguagePython     Language = "Python"
	LanguageJava       Language = "Java"
	LanguageCPP        Language = "C++"
	LanguageJavaScript Language = "JavaScript"
)

// Languages lists every supported language in display order.
var Languages = []Language{LanguagePython, LanguageJava, LanguageCPP, LanguageJavaScript}

var extensions = map[string]Language{
	".py":   LanguagePython,
	".java": LanguageJava,
	".cpp":  LanguageCPP,
	".cc":   LanguageCPP,
	".cxx":  LanguageCPP,
	".js":   LanguageJavaScript,
	".mjs":  LanguageJavaScript,
}

// ParseLanguage accepts a language name case-insensitively, plus the common
// aliases "cpp" and "js".
func ParseLanguage(name string) (Language, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "python", "py":
		return LanguagePython, nil
	case "java":
		return LanguageJava, nil
	case "c++", "cpp":
		return LanguageCPP, nil
	case "javascript", "js":
		return LanguageJavaScript, nil
	}
	return "", fmt.Errorf("unsupported language %q", name)
}

// LanguageForFile infers the language from a file extension.
func LanguageForFile(path string) (Language, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if lang, ok := extensions[ext]; ok {
		return lang, nil
	}
	return "", fmt.Errorf("cannot infer language from %q; pass --language", filepath.Base(path))
}

// Template returns the starter program for a language.
func Template(lang Language) (string, bool) {
	t, ok := templates[lang]
	return t, ok
}

var templates = map[Language]string{
	LanguagePython: `# Python code
print("Hello, World!")

# Your code here
`,
	LanguageJava: `public class Main {
    public static void main(String[] args) {
        System.out.println("Hello, World!");

        // Your code here
    }
}
`,
	LanguageCPP: `#include <iostream>
using namespace std;

int main() {
    cout << "Hello, World!" << endl;

    // Your code here

    return 0;
}
`,
	LanguageJavaScript: `// JavaScript code
console.log("Hello, World!");

// Your code here
`,
}
