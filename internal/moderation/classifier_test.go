package moderation

import "testing"

var (
	resumePhrases  = []string{"ищу работу", "резюме", "рассмотрю вакансии"}
	vacancyPhrases = []string{"требуется", "вакансия", "ищу работников"}
)

func TestClassifyVariants(t *testing.T) {
	t.Parallel()
	c := NewClassifier(resumePhrases, vacancyPhrases)

	tests := []struct {
		name string
		text string
		want Category
	}{
		{name: "resume", text: "Ищу работу водителем, опыт 5 лет", want: CategoryResume},
		{name: "vacancy", text: "Требуется машинист экскаватора", want: CategoryVacancy},
		{name: "trimmed and lowered", text: "  РЕЗЮМЕ: водитель категории Е  ", want: CategoryResume},
		{name: "no match", text: "Продам КАМАЗ 2012 года", want: CategoryUnknown},
		{name: "phrase in the middle does not count", text: "Срочно! Требуется водитель", want: CategoryUnknown},
		{name: "empty", text: "", want: CategoryUnknown},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Classify(tt.text); got != tt.want {
				t.Fatalf("Classify(%q) = %s, want %s", tt.text, got, tt.want)
			}
		})
	}
}

func TestClassifyResumeListWins(t *testing.T) {
	t.Parallel()
	// Both lists start with a phrase matching the text: the resume list is
	// scanned first, so it wins regardless of phrase length.
	c := NewClassifier([]string{"ищу"}, []string{"ищу работников"})
	if got := c.Classify("ищу работников на вахту"); got != CategoryResume {
		t.Fatalf("Classify = %s, want %s", got, CategoryResume)
	}
}

func TestClassifyListOrderTieBreak(t *testing.T) {
	t.Parallel()
	c := NewClassifier([]string{"ищу работу водителем", "ищу работу"}, vacancyPhrases)
	if got := c.Classify("ищу работу водителем"); got != CategoryResume {
		t.Fatalf("Classify = %s, want %s", got, CategoryResume)
	}
	// Order reversed: the shorter phrase still matches first, same category.
	c = NewClassifier([]string{"ищу работу", "ищу работу водителем"}, vacancyPhrases)
	if got := c.Classify("ищу работу водителем"); got != CategoryResume {
		t.Fatalf("Classify = %s, want %s", got, CategoryResume)
	}
}

func TestWordFilterCaseInsensitive(t *testing.T) {
	t.Parallel()
	f := NewWordFilter([]string{"спам", "casino"})

	tests := []struct {
		text string
		want bool
	}{
		{"Это точно не реклама", false},
		{"немного СПАМА в тексте", true},
		{"Best CASINO in town", true},
		{"", false},
	}
	for _, tt := range tests {
		if got := f.Match(tt.text); got != tt.want {
			t.Fatalf("Match(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}
