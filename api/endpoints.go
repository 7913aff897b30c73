package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// GetUserInfo fetches the profile of the current user.
func (c *Client) GetUserInfo(ctx context.Context) (*User, error) {
	var u User
	if err := c.do(ctx, http.MethodGet, "/user/info/", nil, nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Login exchanges credentials for a token pair.
func (c *Client) Login(ctx context.Context, creds Credentials) (*TokenPair, error) {
	var tp TokenPair
	if err := c.do(ctx, http.MethodPost, "/token/", nil, creds, &tp); err != nil {
		return nil, err
	}
	return &tp, nil
}

// ListDepartments returns every department.
func (c *Client) ListDepartments(ctx context.Context) ([]Department, error) {
	var out []Department
	if err := c.do(ctx, http.MethodGet, "/departments/", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateDepartment creates a department.
func (c *Client) CreateDepartment(ctx context.Context, in DepartmentInput) (*Department, error) {
	var d Department
	if err := c.do(ctx, http.MethodPost, "/departments/", nil, in, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// UpdateDepartment replaces the department with the given id.
func (c *Client) UpdateDepartment(ctx context.Context, id int64, in DepartmentInput) (*Department, error) {
	var d Department
	if err := c.do(ctx, http.MethodPut, departmentPath(id), nil, in, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// DeleteDepartment deletes the department with the given id.
func (c *Client) DeleteDepartment(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, departmentPath(id), nil, nil, nil)
}

// ListUsers returns users matching q. A nil q sends no query parameters.
func (c *Client) ListUsers(ctx context.Context, q *UserQuery) (*UserPage, error) {
	var p UserPage
	if err := c.do(ctx, http.MethodGet, "/users/", q.values(), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateUser creates a user.
func (c *Client) CreateUser(ctx context.Context, in UserInput) (*User, error) {
	var u User
	if err := c.do(ctx, http.MethodPost, "/users/", nil, in, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdateUser partially updates the user with the given uid.
func (c *Client) UpdateUser(ctx context.Context, uid string, in UserInput) (*User, error) {
	var u User
	if err := c.do(ctx, http.MethodPatch, userPath(uid), nil, in, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// DeleteUser deletes the user with the given uid.
func (c *Client) DeleteUser(ctx context.Context, uid string) error {
	return c.do(ctx, http.MethodDelete, userPath(uid), nil, nil, nil)
}

// GetDashboardData returns the dashboard statistics.
func (c *Client) GetDashboardData(ctx context.Context) (DashboardData, error) {
	var out DashboardData
	if err := c.do(ctx, http.MethodGet, "/dashboard/data/", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListManagers returns the users eligible to manage a department.
func (c *Client) ListManagers(ctx context.Context) ([]SimpleUser, error) {
	var out []SimpleUser
	if err := c.do(ctx, http.MethodGet, "/managers/", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func departmentPath(id int64) string {
	return fmt.Sprintf("/departments/%d/", id)
}

func userPath(uid string) string {
	return "/users/" + url.PathEscape(uid) + "/"
}
