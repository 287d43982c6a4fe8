package main

import (
	"github.com/rahimizadeh/Prediction-API-with-Flask-and-MLflow/pkg/cli"
)

func main() {
	cli.Execute()
}
