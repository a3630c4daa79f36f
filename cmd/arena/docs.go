package main

//go:generate swag init -g cmd/arena/main.go -o docs

// @title           Trading Arena API
// @version         0.1.0
// @description     Agent debate cycles, weighted voting, demo trades and a live event stream.
// @host            localhost:5000
// @BasePath        /
// @schemes         http
