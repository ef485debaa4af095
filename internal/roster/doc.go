// Package roster содержит реестр исполнителей в памяти процесса.
//
// Registry реализует orchestrator.Roster: хранит исполнителей по командам
// и их текущую нагрузку. Исполнители без команды (uuid.Nil) доступны всем
// командам.
package roster
