package model

// Language is an entry of the language catalog. ID is what clients send;
// JudgeLanguageID is the judge's numeric id for the same toolchain.
type Language struct {
	ID              string `json:"id" yaml:"id"`
	Name            string `json:"name" yaml:"name"`
	JudgeLanguageID int    `json:"-" yaml:"judge_id"`
	IsActive        bool   `json:"is_active" yaml:"active"`
}
