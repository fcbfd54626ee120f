package query

import "time"

type blogType struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}

type audit struct {
	CreatedAt time.Time `json:"created_at"`
}

type blog struct {
	audit
	ID     int       `json:"id"`
	Url    string    `json:"url"`
	Title  string    `json:"title" db:"blog_title"`
	TypeID int       `json:"type_id"`
	Type   *blogType `json:"type"`
	Tags   []string  `json:"tags"`
	Rating *float64  `json:"rating"`
}

func sampleBlogs() []blog {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := &blogType{ID: 1, Description: "tech"}
	t2 := &blogType{ID: 2, Description: "life"}
	r := 4.5
	return []blog{
		{ID: 1, Title: "go generics", TypeID: 1, Type: t1, audit: audit{CreatedAt: base.Add(3 * time.Hour)}, Rating: &r},
		{ID: 2, Title: "hiking", TypeID: 2, Type: t2, audit: audit{CreatedAt: base.Add(1 * time.Hour)}},
		{ID: 3, Title: "go channels", TypeID: 1, Type: t1, audit: audit{CreatedAt: base.Add(2 * time.Hour)}},
		{ID: 4, Title: "cooking", TypeID: 2, Type: t2, audit: audit{CreatedAt: base}},
		{ID: 5, Title: "untyped", TypeID: 0, Type: nil, audit: audit{CreatedAt: base.Add(4 * time.Hour)}},
	}
}

func ids(items []blog) []int {
	out := make([]int, len(items))
	for i, b := range items {
		out[i] = b.ID
	}
	return out
}
