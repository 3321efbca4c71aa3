package github

// REST response shapes, trimmed to the fields the workflow reads.

type issueResponse struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

type commentResponse struct {
	Body string `json:"body"`
}

type branchRef struct {
	Ref string `json:"ref"`
	SHA string `json:"sha"`
}

type pullRequestResponse struct {
	Number int       `json:"number"`
	Title  string    `json:"title"`
	Body   string    `json:"body"`
	Head   branchRef `json:"head"`
	Base   branchRef `json:"base"`
}

type pullRequestFile struct {
	Filename string `json:"filename"`
}

type branchResponse struct {
	Name   string `json:"name"`
	Commit struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

type contentEntry struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	SHA      string `json:"sha"`
	Type     string `json:"type"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

type combinedStatusResponse struct {
	State    string        `json:"state"`
	Statuses []statusEntry `json:"statuses"`
}

type statusEntry struct {
	State   string `json:"state"`
	Context string `json:"context"`
}
