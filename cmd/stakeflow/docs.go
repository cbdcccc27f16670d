package main

//go:generate swag init -g cmd/stakeflow/main.go -o docs

// @title           Stakeflow API
// @version         0.1.0
// @description     Position wizard sessions, draft edits, wallet hand-off and attempt history.
// @host            localhost:8080
// @BasePath        /
// @schemes         http
