//go:build windows

package main

func handleDumpSignal(string) func() { return func() {} }
