// Package bus доставляет координационные сообщения между orchestrator'ом
// и исполнителями внутри процесса.
//
// Каждый получатель имеет inbox с порядком вставки. Подписчики
// вызываются синхронно на пути публикации, поэтому не должны
// блокироваться на внешнем I/O. Межпроцессную доставку добавляет
// мост из пакета mq.
package bus
