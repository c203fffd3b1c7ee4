package judge

import "context"

// Judge0 status ids.
const (
	StatusInQueue           = 1
	StatusProcessing        = 2
	StatusAccepted          = 3
	StatusWrongAnswer       = 4
	StatusTimeLimitExceeded = 5
	StatusCompilationError  = 6
	StatusRuntimeSIGSEGV    = 7
	StatusRuntimeSIGXFSZ    = 8
	StatusRuntimeSIGFPE     = 9
	StatusRuntimeSIGABRT    = 10
	StatusRuntimeNZEC       = 11
	StatusRuntimeOther      = 12
	StatusInternalError     = 13
	StatusExecFormatError   = 14
)

// Item is one execution request: a program, one input and its limits.
type Item struct {
	SourceCode     string
	LanguageID     int // judge-side language id
	Stdin          string
	ExpectedOutput string
	CPUTimeLimitMs int
	MemoryLimitKb  int
}

// Verdict is the judge's view of one item. Output fields are already
// decoded.
type Verdict struct {
	Token         string
	StatusID      int
	Description   string
	TimeMs        *int
	MemoryKb      *int
	Stdout        *string
	Stderr        *string
	CompileOutput *string
	Message       *string
}

func (v Verdict) InProgress() bool {
	return v.StatusID == StatusInQueue || v.StatusID == StatusProcessing
}

// Client talks to the external judge. Implementations do not retry.
type Client interface {
	SubmitBatch(ctx context.Context, items []Item) ([]string, error)
	PollBatch(ctx context.Context, tokens []string) ([]Verdict, error)
}
