package api

import (
	"bytes"
	"encoding/json"
	"net/url"
	"strconv"
)

// UserQuery holds the optional query parameters for GET /users/. Zero
// fields are not sent. Extra is merged in verbatim for filters the service
// adds over time.
type UserQuery struct {
	Page     int
	PageSize int
	Extra    url.Values
}

func (q *UserQuery) values() url.Values {
	if q == nil {
		return nil
	}
	v := url.Values{}
	for k, vals := range q.Extra {
		for _, val := range vals {
			v.Add(k, val)
		}
	}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.PageSize > 0 {
		v.Set("page_size", strconv.Itoa(q.PageSize))
	}
	return v
}

// UserPage is the result of GET /users/. When the service does not paginate,
// Count is len(Results) and Next/Previous are empty.
type UserPage struct {
	Count    int    `json:"count"`
	Next     string `json:"next,omitempty"`
	Previous string `json:"previous,omitempty"`
	Results  []User `json:"results"`
}

// HasMore reports whether a further page is available.
func (p UserPage) HasMore() bool {
	return p.Next != ""
}

// UnmarshalJSON accepts both a bare array and a paginated envelope.
func (p *UserPage) UnmarshalJSON(data []byte) error {
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		var users []User
		if err := json.Unmarshal(trimmed, &users); err != nil {
			return err
		}
		*p = UserPage{Count: len(users), Results: users}
		return nil
	}
	var env struct {
		Count    int     `json:"count"`
		Next     *string `json:"next"`
		Previous *string `json:"previous"`
		Results  []User  `json:"results"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	*p = UserPage{Count: env.Count, Results: env.Results}
	if env.Next != nil {
		p.Next = *env.Next
	}
	if env.Previous != nil {
		p.Previous = *env.Previous
	}
	return nil
}
