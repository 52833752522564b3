package models

// kdcClasses names the ten main classes of the Korean Decimal Classification.
var kdcClasses = map[byte]string{
	'0': "총류",
	'1': "철학",
	'2': "종교",
	'3': "사회과학",
	'4': "자연과학",
	'5': "기술과학",
	'6': "예술",
	'7': "언어",
	'8': "문학",
	'9': "역사",
}

// KDCOther is the class of codes that do not start with a digit.
const KDCOther = "기타"

// KDCClass returns the main class name for a category code, keyed on its first digit.
func KDCClass(code string) string {
	if code == "" {
		return KDCOther
	}
	if name, ok := kdcClasses[code[0]]; ok {
		return name
	}
	return KDCOther
}
