// Package models defines the entities moved between instances: users, groups,
// projects, repositories, and the membership bindings that connect them.
package models
