package flow

// NoticeKind grades a user-facing notice.
type NoticeKind string

const (
	NoticeSuccess NoticeKind = "success"
	NoticeWarning NoticeKind = "warning"
	NoticeError   NoticeKind = "error"
)

// Notice is an alert shown to the user.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Title   string     `json:"title"`
	Message string     `json:"message,omitempty"`
}

// Notifier presents notices.
type Notifier interface {
	Notify(n Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

// Notify calls f.
func (f NotifierFunc) Notify(n Notice) { f(n) }

func errorNotice(message string) Notice {
	return Notice{Kind: NoticeError, Title: "Error", Message: message}
}

var (
	noticeNoFaceReference = Notice{Kind: NoticeWarning, Title: "No face was detected in the captured image"}
	noticeNoFaceLive      = Notice{
		Kind:    NoticeWarning,
		Title:   "No face detected",
		Message: "Make sure your face is well framed and lit.",
	}
	noticeNoReference = Notice{
		Kind:    NoticeWarning,
		Title:   "No reference image",
		Message: "Please capture a reference image first.",
	}
	noticeMismatch = Notice{
		Kind:    NoticeError,
		Title:   "Verification failed",
		Message: "Your face does not match the reference. Please try again.",
	}
	noticeMatch = Notice{
		Kind:    NoticeSuccess,
		Title:   "Verification successful",
		Message: "Your face matches the reference.",
	}
)

func backendNotice(message string) Notice {
	if message == "" {
		message = "Please try again later."
	}
	return Notice{Kind: NoticeWarning, Title: "Backend error", Message: message}
}
