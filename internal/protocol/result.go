package protocol

// Причины отказа, не связанные с кодом результата.
const (
	ReasonUnknown      = "unknown reason"
	ReasonCancellation = "cancellation"
)

// ResultOK — успешный resultCode.
const ResultOK = 0

var resultCodes = map[int]string{
	1003: "Invalid MTI",
	1004: "Already connected",
	1005: "Not connected",
	1006: "Wrong login",
	1007: "Wrong password",
	1008: "No connection tries left",
	1009: "Account disabled",
	1010: "Insufficient rights",
	1011: "Account rights failed",
	1012: "Wrong version",
	1013: "Control failed",
	1014: "Must change password",
	1015: "Invalid new password",
	5000: "Invalid old password",
	2104: "Technical error abort",
	2105: "Technical error routing",
}

// Reason возвращает текст для ненулевого кода результата.
func Reason(code int) string {
	if r, ok := resultCodes[code]; ok {
		return r
	}
	return ReasonUnknown
}
