package certificate

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// CourseCodes maps known course titles to their fixed codes. Titles not in
// the map get a derived code (see CourseCode).
var CourseCodes = map[string]string{
	// Technical skills
	"Full Stack Web Development":       "FSWD",
	"Data Science & Analytics":         "DSA",
	"Cybersecurity Fundamentals":       "CYBER",
	"Mobile App Development (Flutter)": "FLUTTER",
	"Cloud Computing (AWS)":            "AWS",
	"Python Programming":               "PYTHON",
	"JavaScript & Node.js":             "NODEJS",
	"Database Management":              "DBM",

	// Design
	"UI/UX Design Masterclass":  "UIUX",
	"Graphic Design & Branding": "GDB",
	"Motion Graphics":           "MOTION",

	// Business skills
	"Digital Marketing & Social Media":      "DM",
	"Business Analytics & Intelligence":     "BAI",
	"Entrepreneurship & Startup Management": "ENTREP",
	"Project Management":                    "PM",
	"Financial Literacy":                    "FIN",

	// Social innovation
	"Social Innovation & Ethics": "SIE",
	"Leadership & Team Building": "LTB",
}

const (
	minCodeLength = 2
	maxCodeLength = 6
)

// CourseCode returns the code used in certificate numbers for a course.
//
// Unknown titles take the initials of every word longer than two characters
// ("Advanced Robotics Engineering" -> "ARE"). When that yields fewer than two
// characters the first four characters of the title are used instead, upper
// cased. Derived codes only keep A-Z and 0-9, are padded with X up to two
// characters and are capped at six.
func CourseCode(title string) string {
	if code, ok := CourseCodes[title]; ok {
		return code
	}

	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '&', '(', ')':
			return -1
		}
		return r
	}, title)

	var b strings.Builder
	for _, w := range strings.Fields(cleaned) {
		if utf8.RuneCountInString(w) <= 2 {
			continue
		}
		first, _ := utf8.DecodeRuneInString(w)
		if first = unicode.ToUpper(first); isCodeRune(first) {
			b.WriteRune(first)
		}
	}
	code := b.String()

	if len(code) < minCodeLength {
		code = strings.Map(func(r rune) rune {
			if !isCodeRune(r) {
				return -1
			}
			return r
		}, strings.ToUpper(firstRunes(title, 4)))
	}
	for len(code) < minCodeLength {
		code += "X"
	}
	return firstRunes(code, maxCodeLength)
}

// isCodeRune reports whether r may appear in a certificate number's code.
func isCodeRune(r rune) bool {
	return ('A' <= r && r <= 'Z') || ('0' <= r && r <= '9')
}

func firstRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
