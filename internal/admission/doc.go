// Package admission runs an ordered list of rules in front of an endpoint.
//
// Every inbound exchange passes a gate before any collaborator is touched.
// Rules run in the order they were added and the first rule that denies wins,
// so a request rejected by one rule never reaches the next. Each endpoint
// builds one gate at startup with its own outcome type.
package admission
